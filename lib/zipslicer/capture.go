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
	"hash/crc32"

	"github.com/klauspost/compress/flate"
)

var errCaptureSealed = errors.New("write to sealed zip entry")

// Capture accumulates new content for an entry. Size and CRC are placeholders
// until the capture is sealed, after which the entry holds the final
// (compressed) bytes.
type Capture struct {
	entry  *Entry
	buf    bytes.Buffer
	sealed bool
}

// OpenCapture replaces the entry's content with a new, empty capture buffer.
// Uncompressed bytes written to it are compressed according to the entry's
// Method when it is sealed.
func (f *Entry) OpenCapture() *Capture {
	c := &Capture{entry: f}
	f.content = c
	return c
}

func (*Capture) state() string { return "capturing" }

func (c *Capture) Write(d []byte) (int, error) {
	if c.sealed {
		return 0, errCaptureSealed
	}
	return c.buf.Write(d)
}

// Close seals the capture
func (c *Capture) Close() error {
	_, _, err := c.Seal()
	return err
}

// Seal finalizes the captured content, computes its CRC and sizes, and
// stores the result in the entry. Sealing more than once returns the same
// result.
func (c *Capture) Seal() (crc, size uint32, err error) {
	f := c.entry
	if c.sealed {
		return f.CRC32, f.UncompressedSize, nil
	}
	if int64(c.buf.Len()) >= uint32Max {
		return 0, 0, &UnsupportedFeatureError{Name: f.Name, Feature: "ZIP64"}
	}
	raw := c.buf.Bytes()
	var data []byte
	switch {
	case len(raw) == 0:
		// handled by normalize
	case f.Method == Store:
		data = raw
	case f.Method == Deflate:
		var out bytes.Buffer
		w, err := flate.NewWriter(&out, flate.DefaultCompression)
		if err != nil {
			return 0, 0, err
		}
		if _, err := w.Write(raw); err != nil {
			return 0, 0, err
		}
		if err := w.Close(); err != nil {
			return 0, 0, err
		}
		data = out.Bytes()
		if int64(len(data)) >= uint32Max {
			return 0, 0, &UnsupportedFeatureError{Name: f.Name, Feature: "ZIP64"}
		}
	default:
		return 0, 0, &UnsupportedFeatureError{Name: f.Name, Feature: fmt.Sprintf("compression method %d", f.Method)}
	}
	f.CRC32 = crc32.ChecksumIEEE(raw)
	f.UncompressedSize = uint32(len(raw))
	f.CompressedSize = uint32(len(data))
	f.normalize()
	if f.content == c {
		f.content = bufferedContent{data: data}
	}
	c.sealed = true
	c.buf = bytes.Buffer{}
	return f.CRC32, f.UncompressedSize, nil
}

// copy the unsealed capture into a new buffer owned by entry
func (c *Capture) cloneFor(entry *Entry) *Capture {
	n := &Capture{entry: entry}
	n.buf.Write(c.buf.Bytes())
	return n
}
