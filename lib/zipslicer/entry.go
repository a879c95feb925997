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

package zipslicer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/sassoftware/apkrebuild/lib/readercounter"
)

// Entry is a single member of a zip archive: its header fields plus a binding
// to its content
type Entry struct {
	Name             string
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Extra            []byte
	Comment          string
	DiskNumberStart  uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	// Offset of the local file header. For entries read from an archive this
	// is the position in the source; after Writer.Write it is the position in
	// the output.
	Offset uint32

	content content
}

// content is exactly one of lazyContent, bufferedContent or *Capture
type content interface {
	state() string
}

// unread bytes inside a source archive
type lazyContent struct {
	r            io.ReaderAt
	headerOffset int64
}

func (lazyContent) state() string { return "lazy" }

// finalized raw bytes, compressed according to Method
type bufferedContent struct {
	data []byte
}

func (bufferedContent) state() string { return "buffered" }

// NewEntry creates an empty, deflated entry stamped with the current time.
// Content is supplied by writing to OpenCapture.
func NewEntry(name string) *Entry {
	f := &Entry{
		Name:           name,
		CreatorVersion: zip20,
		ReaderVersion:  zip20,
		Method:         Deflate,
		content:        bufferedContent{},
	}
	f.SetModTime(time.Now())
	return f
}

// NewFileEntry creates an entry named name holding the contents of the file at
// path, compressed with method. The modification time is taken from the file.
func NewFileEntry(name, path string, method uint16) (*Entry, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	info, err := fd.Stat()
	if err != nil {
		return nil, err
	}
	f := NewEntry(name)
	f.Method = method
	f.SetModTime(info.ModTime())
	c := f.OpenCapture()
	if _, err := io.Copy(c, fd); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Close(); err != nil {
		return nil, err
	}
	return f, nil
}

// IsDir returns true if the entry names a directory
func (f *Entry) IsDir() bool {
	return strings.HasSuffix(f.Name, "/")
}

// ModTime returns the entry's modification time
func (f *Entry) ModTime() time.Time {
	return DecodeDosTime(f.ModifiedDate, f.ModifiedTime)
}

// SetModTime sets the entry's modification time
func (f *Entry) SetModTime(t time.Time) {
	f.ModifiedDate, f.ModifiedTime = EncodeDosTime(t)
}

// ContentState describes how the entry's content is currently held: "lazy",
// "buffered" or "capturing"
func (f *Entry) ContentState() string {
	if f.content == nil {
		return bufferedContent{}.state()
	}
	return f.content.state()
}

// Sealed returns false while the entry's content is still being captured
func (f *Entry) Sealed() bool {
	_, capturing := f.content.(*Capture)
	return !capturing
}

// Clone returns an independent copy of the entry with a different name. If the
// entry is still capturing, the copy gets its own capture buffer holding the
// bytes written so far.
func (f *Entry) Clone(name string) *Entry {
	c := new(Entry)
	*c = *f
	c.Name = name
	c.Extra = append([]byte(nil), f.Extra...)
	if capture, ok := f.content.(*Capture); ok {
		c.content = capture.cloneFor(c)
	}
	return c
}

// An entry with no content is always stored
func (f *Entry) normalize() {
	if f.UncompressedSize == 0 {
		f.Method = Store
		f.CompressedSize = 0
		f.CRC32 = 0
	}
}

// DataOffset returns the position of the entry's content within its source
// archive, or -1 if the entry is not backed by an archive
func (f *Entry) DataOffset() (int64, error) {
	lazy, ok := f.content.(lazyContent)
	if !ok {
		return -1, nil
	}
	_, dataOffset, err := readLocalHeader(lazy.r, lazy.headerOffset)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.Name, err)
	}
	return dataOffset, nil
}

// OpenRaw returns the entry's content exactly as it is stored in the archive,
// without decompressing it. A capture still in progress is sealed first.
func (f *Entry) OpenRaw() (io.Reader, error) {
	if capture, ok := f.content.(*Capture); ok {
		if _, _, err := capture.Seal(); err != nil {
			return nil, err
		}
	}
	if f.UncompressedSize == 0 {
		return bytes.NewReader(nil), nil
	}
	switch c := f.content.(type) {
	case lazyContent:
		dataOffset, err := f.DataOffset()
		if err != nil {
			return nil, err
		}
		want := int64(f.CompressedSize)
		sr := io.NewSectionReader(c.r, dataOffset, want)
		return readercounter.Exact(sr, want, f.truncated), nil
	case bufferedContent:
		return bytes.NewReader(c.data), nil
	case nil:
		return bytes.NewReader(nil), nil
	default:
		return nil, fmt.Errorf("%s: unexpected content %T", f.Name, c)
	}
}

// Open returns a reader for the entry's decompressed content
func (f *Entry) Open() (io.ReadCloser, error) {
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, err
	}
	switch f.Method {
	case Store:
		return io.NopCloser(raw), nil
	case Deflate:
		return flate.NewReader(raw), nil
	default:
		return nil, &UnsupportedFeatureError{Name: f.Name, Feature: fmt.Sprintf("compression method %d", f.Method)}
	}
}

// ReadAll reads the entry's entire decompressed content into memory
func (f *Entry) ReadAll() ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, int(f.UncompressedSize))
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if trunc := new(TruncatedEntryError); errors.As(err, &trunc) {
			return nil, trunc
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, f.truncated(int64(len(buf)), int64(n))
		}
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	return buf, nil
}

func (f *Entry) truncated(want, got int64) error {
	return &TruncatedEntryError{Name: f.Name, Want: want, Got: got}
}
