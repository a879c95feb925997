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
	"errors"
	"fmt"
)

// ErrClosed is returned when writing to a Writer that has already been closed
var ErrClosed = errors.New("zip writer is closed")

// FormatError is returned when a record is missing its signature or the
// central directory is internally inconsistent
type FormatError struct {
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed zip at offset 0x%08x: %s", e.Offset, e.Msg)
}

// UnsupportedFeatureError is returned for archives that use parts of the
// format outside the supported subset, such as ZIP64 or data descriptors with
// unknown flag bits
type UnsupportedFeatureError struct {
	Name    string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	if e.Name == "" {
		return "unsupported zip feature: " + e.Feature
	}
	return fmt.Sprintf("%s: unsupported zip feature: %s", e.Name, e.Feature)
}

// TruncatedEntryError is returned when an entry's content ends before the
// size recorded in its header
type TruncatedEntryError struct {
	Name string
	Want int64
	Got  int64
}

func (e *TruncatedEntryError) Error() string {
	return fmt.Sprintf("%s: short read, expected %d bytes but got %d", e.Name, e.Want, e.Got)
}

// ErrChecksum is returned by Verify when an entry's content does not match
// the CRC or size recorded in the directory
var ErrChecksum = errors.New("zip entry checksum mismatch")
