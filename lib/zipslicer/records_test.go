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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func centralRecord(t *testing.T, f *Entry, flags uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := writeCentralHeader(&buf, f)
	require.NoError(t, err)
	blob := buf.Bytes()
	// patch the flags directly since writeCentralHeader masks them
	binary.LittleEndian.PutUint16(blob[8:], flags)
	return blob
}

func TestReadCentralHeader(t *testing.T) {
	t.Run("Fields", func(t *testing.T) {
		f := &Entry{
			Name:             "res/a.png",
			CreatorVersion:   0x0314,
			ReaderVersion:    zip20,
			Method:           Deflate,
			ModifiedTime:     0x1234,
			ModifiedDate:     0x5678,
			CRC32:            0xdeadbeef,
			CompressedSize:   10,
			UncompressedSize: 20,
			Extra:            []byte{1, 2, 3},
			Comment:          "hello",
			InternalAttrs:    1,
			ExternalAttrs:    0x81a40000,
			Offset:           99,
		}
		blob := centralRecord(t, f, 0x0808)
		blob = append(blob, 'P', 'K', 5, 6)
		parsed, rest, ok, err := readCentralHeader(blob, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{'P', 'K', 5, 6}, rest)
		assert.Equal(t, uint16(flagUTF8), parsed.Flags, "data descriptor bit must be cleared")
		parsed.Flags = 0
		assert.Equal(t, f, parsed)
	})
	t.Run("EndOfDirectory", func(t *testing.T) {
		blob := []byte{'P', 'K', 5, 6, 0, 0}
		f, rest, ok, err := readCentralHeader(blob, 0)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, f)
		assert.Equal(t, blob, rest)
	})
	t.Run("UnsupportedFlags", func(t *testing.T) {
		f := &Entry{Name: "secret", UncompressedSize: 1, CompressedSize: 1}
		for _, flags := range []uint16{0x0001, 0x0010, 0x2000, 0x8000} {
			_, _, _, err := readCentralHeader(centralRecord(t, f, flags), 0)
			var unsupported *UnsupportedFeatureError
			require.ErrorAs(t, err, &unsupported, "flags %04x", flags)
			assert.Equal(t, "secret", unsupported.Name)
		}
		for _, flags := range []uint16{0x0002, 0x0004, 0x0008, 0x0800} {
			_, _, ok, err := readCentralHeader(centralRecord(t, f, flags), 0)
			require.NoError(t, err, "flags %04x", flags)
			assert.True(t, ok)
		}
	})
	t.Run("EmptyIsStored", func(t *testing.T) {
		f := &Entry{Name: "empty", Method: Deflate, CompressedSize: 2, CRC32: 1}
		parsed, _, ok, err := readCentralHeader(centralRecord(t, f, 0), 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Store, parsed.Method)
		assert.Zero(t, parsed.CompressedSize)
		assert.Zero(t, parsed.CRC32)
	})
	t.Run("Truncated", func(t *testing.T) {
		f := &Entry{Name: "truncated", Comment: "comment"}
		blob := centralRecord(t, f, 0)
		_, _, _, err := readCentralHeader(blob[:len(blob)-1], 0)
		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		_, _, _, err = readCentralHeader(blob[:20], 0)
		require.ErrorAs(t, err, &fe)
	})
	t.Run("Zip64", func(t *testing.T) {
		f := &Entry{Name: "big", CompressedSize: uint32Max, UncompressedSize: uint32Max}
		_, _, _, err := readCentralHeader(centralRecord(t, f, 0), 0)
		var unsupported *UnsupportedFeatureError
		require.ErrorAs(t, err, &unsupported)
	})
}

func TestReadLocalHeader(t *testing.T) {
	f := &Entry{Name: "lib/armeabi/libx.so", Extra: []byte{0, 0, 0}}
	var buf bytes.Buffer
	buf.WriteString("junk")
	n, err := writeLocalHeader(&buf, f, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(fileHeaderLen+len(f.Name)+5), n)
	hdr, dataOffset, err := readLocalHeader(bytes.NewReader(buf.Bytes()), 4)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), hdr.ExtraLen)
	assert.Equal(t, int64(buf.Len()), dataOffset)

	_, _, err = readLocalHeader(bytes.NewReader(buf.Bytes()), 0)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(0), fe.Offset)

	_, _, err = readLocalHeader(bytes.NewReader(buf.Bytes()[:20]), 4)
	require.ErrorAs(t, err, &fe)
}

func TestAlignmentPadding(t *testing.T) {
	for dataStart, pad := range map[int64]int{
		0:  0,
		30: 2,
		31: 1,
		32: 0,
		33: 3,
		34: 2,
	} {
		assert.Equal(t, pad, alignmentPadding(dataStart), "dataStart=%d", dataStart)
	}
}

func TestWriteEndRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEndRecord(&buf, 3, 100, 200))
	blob := buf.Bytes()
	require.Len(t, blob, directoryEndLen)
	assert.Equal(t, uint32(directoryEndSignature), binary.LittleEndian.Uint32(blob))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(blob[8:]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(blob[10:]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(blob[12:]))
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(blob[16:]))

	var unsupported *UnsupportedFeatureError
	require.ErrorAs(t, writeEndRecord(&buf, 1, 1, uint32Max), &unsupported)
}
