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

// Package patchinfo persists the record of which patch version was last
// composed and the digest of the container it produced.
package patchinfo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"

	"github.com/sassoftware/apkrebuild/lib/atomicfile"
	"github.com/sassoftware/apkrebuild/lib/filelock"
)

// Info is the persisted patch state
type Info struct {
	Version string        `yaml:"version"`
	Digest  digest.Digest `yaml:"digest,omitempty"`
	Updated time.Time     `yaml:"updated,omitempty"`
}

// Matches reports whether the record names this version and output digest
func (i Info) Matches(version string, d digest.Digest) bool {
	return i.Version == version && i.Digest != "" && i.Digest == d
}

// Read loads the record at path. A missing file yields an empty record.
func Read(path string) (Info, error) {
	var info Info
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	} else if err != nil {
		return info, err
	}
	if err := yaml.Unmarshal(blob, &info); err != nil {
		return info, fmt.Errorf("parsing %s: %w", path, err)
	}
	if info.Digest != "" {
		if err := info.Digest.Validate(); err != nil {
			return info, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return info, nil
}

// ReadWithLock loads the record while holding the lock file
func ReadWithLock(path, lockPath string) (info Info, err error) {
	err = filelock.With(lockPath, func() error {
		info, err = Read(path)
		return err
	})
	return
}

// Write replaces the record at path atomically
func Write(path string, info Info) error {
	blob, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	f, err := atomicfile.New(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(blob); err != nil {
		return err
	}
	return f.Commit()
}

// RewriteWithLock holds the lock file while the record is replaced. The
// update time is stamped if the caller left it unset.
func RewriteWithLock(path, lockPath string, info Info) error {
	if info.Updated.IsZero() {
		info.Updated = time.Now().UTC().Truncate(time.Second)
	}
	return filelock.With(lockPath, func() error {
		return Write(path, info)
	})
}
