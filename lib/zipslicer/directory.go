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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/sassoftware/apkrebuild/internal/closeonce"
)

// Directory is the parsed central directory of an archive. Entries are kept in
// directory order and can also be looked up by name.
type Directory struct {
	Size    int64  // size of the archive
	DirLoc  int64  // offset of the central directory
	DirSize int64  // length of the central directory
	Comment string // archive comment from the end record

	r       io.ReaderAt
	entries []*Entry
	index   map[string]int
	closer  io.Closer
	closed  closeonce.Closed
}

// Open an archive file and read its central directory. Entry contents are
// read lazily from the file until the directory is closed.
func Open(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	d, err := Read(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.closer = f
	return d, nil
}

// Locate the end of central directory record, allowing for a trailing archive
// comment
func findEnd(r io.ReaderAt, size int64) (end zipEndRecord, endOffset int64, comment []byte, err error) {
	scan := int64(directoryEndLen + uint16Max)
	if scan > size {
		scan = size
	}
	if scan < directoryEndLen {
		return end, 0, nil, &FormatError{Offset: 0, Msg: "file too small to be a zip archive"}
	}
	buf := make([]byte, scan)
	if _, err := r.ReadAt(buf, size-scan); err != nil {
		return end, 0, nil, err
	}
	for i := len(buf) - directoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != directoryEndSignature {
			continue
		}
		if err := binary.Read(bytes.NewReader(buf[i:i+directoryEndLen]), binary.LittleEndian, &end); err != nil {
			return end, 0, nil, err
		}
		commentEnd := i + directoryEndLen + int(end.CommentLen)
		if commentEnd > len(buf) {
			// signature bytes that happen to appear inside a comment
			continue
		}
		return end, size - scan + int64(i), buf[i+directoryEndLen : commentEnd], nil
	}
	return end, 0, nil, &FormatError{Offset: size, Msg: "zip central directory not found"}
}

// FindDirectory returns the offset of the zip central directory
func FindDirectory(r io.ReaderAt, size int64) (int64, error) {
	end, _, _, err := findEnd(r, size)
	if err != nil {
		return 0, err
	}
	return int64(end.CDOffset), nil
}

// Read the central directory of the archive in r. Central directory records
// are scanned in order until a record with a different signature is found, and
// the number found is checked against the end record.
func Read(r io.ReaderAt, size int64) (*Directory, error) {
	end, endOffset, comment, err := findEnd(r, size)
	if err != nil {
		return nil, err
	}
	if end.DiskNumber != 0 || end.DiskCD != 0 || end.DiskCDCount != end.TotalCDCount {
		return nil, &UnsupportedFeatureError{Feature: "multi-volume archive"}
	}
	if end.TotalCDCount == uint16Max || end.CDSize == uint32Max || end.CDOffset == uint32Max {
		return nil, &UnsupportedFeatureError{Feature: "ZIP64"}
	}
	dirLoc := int64(end.CDOffset)
	dirSize := int64(end.CDSize)
	if dirLoc+dirSize > endOffset {
		return nil, &FormatError{Offset: endOffset, Msg: "central directory overlaps end record"}
	}
	cd := make([]byte, dirSize)
	if _, err := r.ReadAt(cd, dirLoc); err != nil {
		return nil, err
	}
	d := &Directory{
		Size:    size,
		DirLoc:  dirLoc,
		DirSize: dirSize,
		Comment: string(comment),
		r:       r,
		index:   make(map[string]int),
	}
	var count int
	pos := dirLoc
	for {
		f, rest, ok, err := readCentralHeader(cd, pos)
		if err != nil {
			return nil, err
		} else if !ok {
			break
		}
		pos += int64(len(cd) - len(rest))
		cd = rest
		if int64(f.Offset) >= dirLoc {
			return nil, &FormatError{Offset: pos, Msg: fmt.Sprintf("%s: local header offset past start of directory", f.Name)}
		}
		f.content = lazyContent{r: r, headerOffset: int64(f.Offset)}
		d.add(f)
		count++
	}
	if count != int(end.TotalCDCount) {
		return nil, &FormatError{Offset: pos, Msg: fmt.Sprintf("end record lists %d entries but directory holds %d", end.TotalCDCount, count)}
	}
	if len(cd) != 0 {
		return nil, &FormatError{Offset: pos, Msg: "trailing data in central directory"}
	}
	return d, nil
}

// A name that was already seen is replaced in place, so the last record wins
// but keeps the position of the first
func (d *Directory) add(f *Entry) {
	if i, ok := d.index[f.Name]; ok {
		d.entries[i] = f
		return
	}
	d.index[f.Name] = len(d.entries)
	d.entries = append(d.entries, f)
}

// Entries returns the archive's entries in directory order
func (d *Directory) Entries() []*Entry {
	return append([]*Entry(nil), d.entries...)
}

// Len returns the number of distinct entry names
func (d *Directory) Len() int {
	return len(d.entries)
}

// Get returns the named entry, or nil if it does not exist
func (d *Directory) Get(name string) *Entry {
	if i, ok := d.index[name]; ok {
		return d.entries[i]
	}
	return nil
}

// Names returns the entry names in directory order
func (d *Directory) Names() []string {
	names := make([]string, len(d.entries))
	for i, f := range d.entries {
		names[i] = f.Name
	}
	return names
}

// Verify reads every entry and checks its size and CRC against the directory
func (d *Directory) Verify() error {
	for _, f := range d.entries {
		if err := verifyEntry(f); err != nil {
			return err
		}
	}
	return nil
}

func verifyEntry(f *Entry) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	h := crc32.NewIEEE()
	want := int64(f.UncompressedSize)
	n, err := io.Copy(h, io.LimitReader(r, want+1))
	if err != nil {
		if trunc := new(TruncatedEntryError); errors.As(err, &trunc) {
			return trunc
		}
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	switch {
	case n < want:
		return f.truncated(want, n)
	case n > want:
		return fmt.Errorf("%s: %w: content is longer than %d bytes", f.Name, ErrChecksum, want)
	case h.Sum32() != f.CRC32:
		return fmt.Errorf("%s: %w: expected %08x, got %08x", f.Name, ErrChecksum, f.CRC32, h.Sum32())
	}
	return nil
}

// Close releases the underlying file, if the directory was opened with Open
func (d *Directory) Close() error {
	return d.closed.Close(func() error {
		if d.closer != nil {
			return d.closer.Close()
		}
		return nil
	})
}
