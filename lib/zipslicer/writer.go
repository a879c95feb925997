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
	"bufio"
	"io"

	"github.com/sassoftware/apkrebuild/internal/closeonce"
	"github.com/sassoftware/apkrebuild/lib/readercounter"
)

// Writer serializes entries into a new archive. The content of every stored
// entry is padded to start on an Alignment boundary. Compressed content is
// copied through without being decoded.
type Writer struct {
	buf     *bufio.Writer
	cw      *readercounter.WriterCounter
	records []*Entry
	closed  closeonce.Closed
}

// NewWriter starts a new archive at the current position of w. Offsets are
// relative to that position.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{
		buf: buf,
		cw:  readercounter.NewWriter(buf),
	}
}

// Offset returns the number of bytes written so far
func (w *Writer) Offset() int64 {
	return w.cw.N
}

// Write appends one entry to the archive. A capture that is still open is
// sealed first. The entry's Offset is updated to its position in the output.
func (w *Writer) Write(f *Entry) error {
	if w.closed.Closed() {
		return ErrClosed
	}
	// seal, then resolve the source before anything is written so a bad
	// source does not leave a partial record behind
	raw, err := f.OpenRaw()
	if err != nil {
		return err
	}
	f.normalize()
	offset := w.cw.N
	if offset >= uint32Max {
		return &UnsupportedFeatureError{Name: f.Name, Feature: "ZIP64"}
	}
	f.Offset = uint32(offset)
	var pad int
	if f.Method == Store {
		dataStart := offset + fileHeaderLen + int64(len(f.Name)) + int64(len(f.Extra))
		pad = alignmentPadding(dataStart)
	}
	if _, err := writeLocalHeader(w.cw, f, pad); err != nil {
		return err
	}
	n, err := io.Copy(w.cw, raw)
	if err != nil {
		return err
	} else if n != int64(f.CompressedSize) {
		return f.truncated(int64(f.CompressedSize), n)
	}
	rec := &Entry{
		Name:             f.Name,
		CreatorVersion:   f.CreatorVersion,
		ReaderVersion:    f.ReaderVersion,
		Flags:            f.Flags & flagUTF8,
		Method:           f.Method,
		ModifiedTime:     f.ModifiedTime,
		ModifiedDate:     f.ModifiedDate,
		CRC32:            f.CRC32,
		CompressedSize:   f.CompressedSize,
		UncompressedSize: f.UncompressedSize,
		Extra:            append(append([]byte(nil), f.Extra...), make([]byte, pad)...),
		Comment:          f.Comment,
		DiskNumberStart:  f.DiskNumberStart,
		InternalAttrs:    f.InternalAttrs,
		ExternalAttrs:    f.ExternalAttrs,
		Offset:           f.Offset,
	}
	w.records = append(w.records, rec)
	return nil
}

// Close writes the central directory and end record and flushes the output.
// It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.closed.Close(func() error {
		dirLoc := w.cw.N
		for _, rec := range w.records {
			if _, err := writeCentralHeader(w.cw, rec); err != nil {
				return err
			}
		}
		if err := writeEndRecord(w.cw, len(w.records), w.cw.N-dirLoc, dirLoc); err != nil {
			return err
		}
		return w.buf.Flush()
	})
}
