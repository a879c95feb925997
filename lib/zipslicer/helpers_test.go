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
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testFile struct {
	name   string
	data   []byte
	method uint16
}

// build an archive with the standard library writer, which uses data
// descriptors for every entry
func stdZip(t *testing.T, comment string, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, tf := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     tf.name,
			Method:   tf.method,
			Modified: time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC),
		})
		require.NoError(t, err)
		_, err = w.Write(tf.data)
		require.NoError(t, err)
	}
	if comment != "" {
		require.NoError(t, zw.SetComment(comment))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// build an archive with Writer from freshly captured entries
func alignedZip(t *testing.T, files ...testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, tf := range files {
		f := NewEntry(tf.name)
		f.Method = tf.method
		c := f.OpenCapture()
		_, err := c.Write(tf.data)
		require.NoError(t, err)
		require.NoError(t, w.Write(f))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readZip(t *testing.T, blob []byte) *Directory {
	t.Helper()
	d, err := Read(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	return d
}

func rawBytes(t *testing.T, f *Entry) []byte {
	t.Helper()
	r, err := f.OpenRaw()
	require.NoError(t, err)
	blob, err := io.ReadAll(r)
	require.NoError(t, err)
	return blob
}
