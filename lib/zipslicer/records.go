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
	"io"
)

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	fileHeaderLen            = 30 // + filename + extra
	directoryHeaderLen       = 46 // + filename + extra + comment
	directoryEndLen          = 22 // + comment

	uint16Max = 0xffff
	uint32Max = 0xffffffff

	zip20 = 20

	// bits that may not be set in a central directory header
	unsupportedFlags = 0xF7F1
	flagUTF8         = 0x0800
)

// Compression methods
const (
	Store   uint16 = 0
	Deflate uint16 = 8
)

// Alignment is the boundary that the content of stored entries is padded to
const Alignment = 4

type zipLocalHeader struct {
	Signature        uint32
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLen      uint16
	ExtraLen         uint16
}

type zipCentralDir struct {
	Signature        uint32
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLen      uint16
	ExtraLen         uint16
	CommentLen       uint16
	StartDisk        uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	Offset           uint32
}

type zipEndRecord struct {
	Signature    uint32
	DiskNumber   uint16
	DiskCD       uint16
	DiskCDCount  uint16
	TotalCDCount uint16
	CDSize       uint32
	CDOffset     uint32
	CommentLen   uint16
}

// Read the local file header at offset and return it along with the offset
// where the entry's content begins
func readLocalHeader(r io.ReaderAt, offset int64) (hdr zipLocalHeader, dataOffset int64, err error) {
	var buf [fileHeaderLen]byte
	if _, err := r.ReadAt(buf[:], offset); err != nil {
		if errors.Is(err, io.EOF) {
			return hdr, 0, &FormatError{Offset: offset, Msg: "local file header truncated"}
		}
		return hdr, 0, err
	}
	if err := binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, &hdr); err != nil {
		return hdr, 0, err
	}
	if hdr.Signature != fileHeaderSignature {
		return hdr, 0, &FormatError{Offset: offset, Msg: fmt.Sprintf("expected local file header, found signature 0x%08x", hdr.Signature)}
	}
	dataOffset = offset + fileHeaderLen + int64(hdr.FilenameLen) + int64(hdr.ExtraLen)
	return hdr, dataOffset, nil
}

// Parse one central directory record from the front of cd. If cd does not
// start with a central directory signature then ok is false, which marks the
// end of the directory.
func readCentralHeader(cd []byte, pos int64) (f *Entry, rest []byte, ok bool, err error) {
	if len(cd) < 4 || binary.LittleEndian.Uint32(cd) != directoryHeaderSignature {
		return nil, cd, false, nil
	}
	if len(cd) < directoryHeaderLen {
		return nil, cd, false, &FormatError{Offset: pos, Msg: "central directory header truncated"}
	}
	var hdr zipCentralDir
	if err := binary.Read(bytes.NewReader(cd[:directoryHeaderLen]), binary.LittleEndian, &hdr); err != nil {
		return nil, cd, false, err
	}
	total := directoryHeaderLen + int(hdr.FilenameLen) + int(hdr.ExtraLen) + int(hdr.CommentLen)
	if len(cd) < total {
		return nil, cd, false, &FormatError{Offset: pos, Msg: "central directory header truncated"}
	}
	rest = cd[directoryHeaderLen:]
	var name, extra, comment []byte
	name, rest = rest[:int(hdr.FilenameLen)], rest[int(hdr.FilenameLen):]
	extra, rest = rest[:int(hdr.ExtraLen)], rest[int(hdr.ExtraLen):]
	comment, rest = rest[:int(hdr.CommentLen)], rest[int(hdr.CommentLen):]
	if hdr.Flags&unsupportedFlags != 0 {
		return nil, cd, false, &UnsupportedFeatureError{
			Name:    string(name),
			Feature: fmt.Sprintf("general purpose flags 0x%04x", hdr.Flags),
		}
	}
	if hdr.CompressedSize == uint32Max || hdr.UncompressedSize == uint32Max || hdr.Offset == uint32Max {
		return nil, cd, false, &UnsupportedFeatureError{Name: string(name), Feature: "ZIP64"}
	}
	f = &Entry{
		Name:             string(name),
		CreatorVersion:   hdr.CreatorVersion,
		ReaderVersion:    hdr.ReaderVersion,
		Flags:            hdr.Flags & flagUTF8, // never emit a data descriptor
		Method:           hdr.Method,
		ModifiedTime:     hdr.ModifiedTime,
		ModifiedDate:     hdr.ModifiedDate,
		CRC32:            hdr.CRC32,
		CompressedSize:   hdr.CompressedSize,
		UncompressedSize: hdr.UncompressedSize,
		Extra:            append([]byte(nil), extra...),
		Comment:          string(comment),
		DiskNumberStart:  hdr.StartDisk,
		InternalAttrs:    hdr.InternalAttrs,
		ExternalAttrs:    hdr.ExternalAttrs,
		Offset:           hdr.Offset,
	}
	f.normalize()
	return f, rest, true, nil
}

func checkLengths(f *Entry, extraLen int) error {
	if len(f.Name) > uint16Max {
		return &UnsupportedFeatureError{Name: f.Name[:64], Feature: "file name longer than 65535 bytes"}
	}
	if extraLen > uint16Max {
		return &UnsupportedFeatureError{Name: f.Name, Feature: "extra field longer than 65535 bytes"}
	}
	if len(f.Comment) > uint16Max {
		return &UnsupportedFeatureError{Name: f.Name, Feature: "comment longer than 65535 bytes"}
	}
	return nil
}

// Write the local file header, name and extra field for f. The extra field is
// extended with pad zero bytes.
func writeLocalHeader(w io.Writer, f *Entry, pad int) (int64, error) {
	if err := checkLengths(f, len(f.Extra)+pad); err != nil {
		return 0, err
	}
	hdr := zipLocalHeader{
		Signature:        fileHeaderSignature,
		ReaderVersion:    f.ReaderVersion,
		Flags:            f.Flags & flagUTF8,
		Method:           f.Method,
		ModifiedTime:     f.ModifiedTime,
		ModifiedDate:     f.ModifiedDate,
		CRC32:            f.CRC32,
		CompressedSize:   f.CompressedSize,
		UncompressedSize: f.UncompressedSize,
		FilenameLen:      uint16(len(f.Name)),
		ExtraLen:         uint16(len(f.Extra) + pad),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, f.Name); err != nil {
		return 0, err
	}
	if _, err := w.Write(f.Extra); err != nil {
		return 0, err
	}
	if pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return 0, err
		}
	}
	return int64(fileHeaderLen + len(f.Name) + len(f.Extra) + pad), nil
}

// Write the central directory record for f
func writeCentralHeader(w io.Writer, f *Entry) (int64, error) {
	if err := checkLengths(f, len(f.Extra)); err != nil {
		return 0, err
	}
	hdr := zipCentralDir{
		Signature:        directoryHeaderSignature,
		CreatorVersion:   f.CreatorVersion,
		ReaderVersion:    f.ReaderVersion,
		Flags:            f.Flags & flagUTF8,
		Method:           f.Method,
		ModifiedTime:     f.ModifiedTime,
		ModifiedDate:     f.ModifiedDate,
		CRC32:            f.CRC32,
		CompressedSize:   f.CompressedSize,
		UncompressedSize: f.UncompressedSize,
		FilenameLen:      uint16(len(f.Name)),
		ExtraLen:         uint16(len(f.Extra)),
		CommentLen:       uint16(len(f.Comment)),
		StartDisk:        f.DiskNumberStart,
		InternalAttrs:    f.InternalAttrs,
		ExternalAttrs:    f.ExternalAttrs,
		Offset:           f.Offset,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, f.Name); err != nil {
		return 0, err
	}
	if _, err := w.Write(f.Extra); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, f.Comment); err != nil {
		return 0, err
	}
	return int64(directoryHeaderLen + len(f.Name) + len(f.Extra) + len(f.Comment)), nil
}

// Write the end of central directory record
func writeEndRecord(w io.Writer, count int, size, offset int64) error {
	if count >= uint16Max || size >= uint32Max || offset >= uint32Max {
		return &UnsupportedFeatureError{Feature: "ZIP64"}
	}
	end := zipEndRecord{
		Signature:    directoryEndSignature,
		DiskCDCount:  uint16(count),
		TotalCDCount: uint16(count),
		CDSize:       uint32(size),
		CDOffset:     uint32(offset),
	}
	return binary.Write(w, binary.LittleEndian, end)
}

// Return the number of zero bytes needed to push dataStart to the next
// alignment boundary
func alignmentPadding(dataStart int64) int {
	if n := dataStart % Alignment; n != 0 {
		return int(Alignment - n)
	}
	return 0
}
