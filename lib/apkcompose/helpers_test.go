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

package apkcompose

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkrebuild/lib/zipslicer"
)

type testFile struct {
	name   string
	data   string
	method uint16
}

func writeZip(t *testing.T, name string, files ...testFile) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
	fd, err := os.Create(name)
	require.NoError(t, err)
	defer fd.Close()
	zw := zip.NewWriter(fd)
	for _, tf := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     tf.name,
			Method:   tf.method,
			Modified: time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC),
		})
		require.NoError(t, err)
		_, err = w.Write([]byte(tf.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return name
}

func writeFile(t *testing.T, name, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
	require.NoError(t, os.WriteFile(name, []byte(data), 0644))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Report(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// fixture lays out a patch directory the way the patch installer leaves it
type fixture struct {
	dir  string
	job  *Job
	rec  *recorder
	comp *Composer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	patchDir := filepath.Join(dir, "patch")
	job := JobPaths(patchDir, filepath.Join(dir, "out"), "1.0")
	job.Name = "test"
	job.Version = "1.0"
	job.BaseAPK = writeZip(t, filepath.Join(dir, "base.apk"),
		testFile{name: "AndroidManifest.xml", data: "stale manifest", method: zip.Deflate},
		testFile{name: "META-INF/OLD.SF", data: "old signature", method: zip.Deflate},
		testFile{name: "res/a.png", data: "base png", method: zip.Store},
	)
	job.PatchFile = writeZip(t, filepath.Join(patchDir, "patch.apk"),
		testFile{name: "AndroidManifest.xml", data: "A", method: zip.Deflate},
		testFile{name: "assets/APK-META-INF/CERT.SF", data: "new signature", method: zip.Deflate},
		testFile{name: "assets/other.txt", data: "not copied", method: zip.Deflate},
	)
	job.NativeLibs = []NativeLib{{Path: "armeabi", Name: "libx.so"}}
	writeFile(t, filepath.Join(job.NativeLibDir, "armeabi", "libx.so"), "\x7fELF native code")
	rec := new(recorder)
	return &fixture{dir: dir, job: &job, rec: rec, comp: New(Layout{}, rec)}
}

func readOutput(t *testing.T, name string) (*zipslicer.Directory, map[string]string) {
	t.Helper()
	d, err := zipslicer.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Verify())
	contents := make(map[string]string)
	for _, f := range d.Entries() {
		blob, err := f.ReadAll()
		require.NoError(t, err)
		contents[f.Name] = string(blob)
	}
	return d, contents
}

func assertAligned(t *testing.T, d *zipslicer.Directory) {
	t.Helper()
	for _, f := range d.Entries() {
		if f.Method != zipslicer.Store {
			continue
		}
		off, err := f.DataOffset()
		require.NoError(t, err)
		assert.Zerof(t, off%zipslicer.Alignment, "%s content at %d", f.Name, off)
	}
}
