/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile is written to a temporary file next to its destination and only
// replaces the destination when committed. Closing without committing throws
// the output away, so a failed build never leaves a partial file behind.
type AtomicFile interface {
	io.WriteCloser
	Commit() error
	// Name is the path currently holding the output
	Name() string
}

type atomicFile struct {
	name     string
	tempfile *os.File
}

// New starts writing a replacement for the file at name
func New(name string) (AtomicFile, error) {
	tempfile, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name: name, tempfile: tempfile}, nil
}

func (f *atomicFile) Name() string {
	if f.tempfile == nil {
		return f.name
	}
	return f.tempfile.Name()
}

func (f *atomicFile) Write(d []byte) (int, error) {
	if f.tempfile == nil {
		return 0, os.ErrClosed
	}
	return f.tempfile.Write(d)
}

// Close discards the output if it has not been committed
func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	err := os.Remove(f.tempfile.Name())
	f.tempfile = nil
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	return err
}

// Commit flushes the output to disk and moves it into place
func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	if err := f.tempfile.Chmod(0644); err != nil {
		return err
	}
	if err := f.tempfile.Sync(); err != nil {
		return err
	}
	if err := f.tempfile.Close(); err != nil {
		return err
	}
	// rename can't overwrite on windows
	if err := os.Remove(f.name); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(f.tempfile.Name(), f.name); err != nil {
		return err
	}
	f.tempfile = nil
	return nil
}
