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

package readercounter

import "io"

// Wraps a Reader and counts how many bytes are read from it
type ReaderCounter struct {
	R io.Reader // underlying Reader
	N int64     // number of bytes read
}

func New(r io.Reader) *ReaderCounter {
	return &ReaderCounter{R: r}
}

func (c *ReaderCounter) Read(d []byte) (int, error) {
	n, err := c.R.Read(d)
	c.N += int64(n)
	return n, err
}

// Wraps a Writer and counts how many bytes are written to it. N is the
// position in the output stream, which the zip writer uses to compute header
// offsets and alignment.
type WriterCounter struct {
	W io.Writer // underlying Writer
	N int64     // number of bytes written
}

func NewWriter(w io.Writer) *WriterCounter {
	return &WriterCounter{W: w}
}

func (c *WriterCounter) Write(d []byte) (int, error) {
	n, err := c.W.Write(d)
	c.N += int64(n)
	return n, err
}

// ShortReadFunc builds the error returned when the underlying reader ends
// early
type ShortReadFunc func(want, got int64) error

// Exact reads exactly want bytes from r. If r hits EOF first, short is called
// to produce the error returned in place of io.EOF.
func Exact(r io.Reader, want int64, short ShortReadFunc) io.Reader {
	return &exactReader{c: New(io.LimitReader(r, want)), want: want, short: short}
}

type exactReader struct {
	c     *ReaderCounter
	want  int64
	short ShortReadFunc
}

func (r *exactReader) Read(d []byte) (int, error) {
	n, err := r.c.Read(d)
	if err == io.EOF && r.c.N < r.want {
		err = r.short(r.want, r.c.N)
	}
	return n, err
}
