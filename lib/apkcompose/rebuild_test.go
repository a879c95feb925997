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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkrebuild/lib/patchinfo"
	"github.com/sassoftware/apkrebuild/lib/zipslicer"
)

func TestRebuildScenario(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, 4, res.Entries)
	assert.Equal(t, filepath.Join(fx.dir, "out", "1.0_align.apk"), res.Output)

	d, contents := readOutput(t, res.Output)
	assert.Equal(t, []string{
		"AndroidManifest.xml",
		"META-INF/CERT.SF",
		"lib/armeabi/libx.so",
		"res/a.png",
	}, d.Names())
	assert.Equal(t, map[string]string{
		"AndroidManifest.xml": "A",
		"META-INF/CERT.SF":    "new signature",
		"lib/armeabi/libx.so": "\x7fELF native code",
		"res/a.png":           "base png",
	}, contents)
	assertAligned(t, d)

	// the standard library agrees with the result
	zr, err := zip.OpenReader(res.Output)
	require.NoError(t, err)
	defer zr.Close()
	assert.Len(t, zr.File, 4)

	// digest and state are recorded
	d2, err := fileDigest(res.Output)
	require.NoError(t, err)
	assert.Equal(t, d2, res.Digest)
	info, err := patchinfo.Read(fx.job.InfoFile)
	require.NoError(t, err)
	assert.True(t, info.Matches("1.0", res.Digest))
	assert.Equal(t, []EventKind{Success}, fx.rec.kinds())

	// nothing else is left in the output directory
	entries, err := os.ReadDir(filepath.Dir(res.Output))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRebuildIdempotent(t *testing.T) {
	fx := newFixture(t)
	first, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	outBefore, err := os.ReadFile(first.Output)
	require.NoError(t, err)
	outStat, err := os.Stat(first.Output)
	require.NoError(t, err)
	infoBefore, err := os.ReadFile(fx.job.InfoFile)
	require.NoError(t, err)

	second, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Zero(t, second.Entries)

	outAfter, err := os.ReadFile(first.Output)
	require.NoError(t, err)
	assert.Equal(t, outBefore, outAfter)
	outStat2, err := os.Stat(first.Output)
	require.NoError(t, err)
	assert.Equal(t, outStat.ModTime(), outStat2.ModTime())
	infoAfter, err := os.ReadFile(fx.job.InfoFile)
	require.NoError(t, err)
	assert.Equal(t, infoBefore, infoAfter)
	assert.Equal(t, []EventKind{Success}, fx.rec.kinds(), "no event for a reused output")
}

func TestRebuildStale(t *testing.T) {
	fx := newFixture(t)
	first, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)

	t.Run("Tampered", func(t *testing.T) {
		require.NoError(t, os.WriteFile(first.Output, []byte("not a package"), 0644))
		res, err := fx.comp.Rebuild(context.Background(), fx.job)
		require.NoError(t, err)
		assert.False(t, res.Reused)
		assert.Equal(t, first.Digest, res.Digest)
		readOutput(t, res.Output)
	})
	t.Run("OtherVersion", func(t *testing.T) {
		require.NoError(t, patchinfo.Write(fx.job.InfoFile, patchinfo.Info{Version: "0.9", Digest: first.Digest}))
		res, err := fx.comp.Rebuild(context.Background(), fx.job)
		require.NoError(t, err)
		assert.False(t, res.Reused)
		info, err := patchinfo.Read(fx.job.InfoFile)
		require.NoError(t, err)
		assert.Equal(t, "1.0", info.Version)
	})
	t.Run("Force", func(t *testing.T) {
		fx.job.Force = true
		defer func() { fx.job.Force = false }()
		res, err := fx.comp.Rebuild(context.Background(), fx.job)
		require.NoError(t, err)
		assert.False(t, res.Reused)
	})
}

func TestRebuildMissingManifest(t *testing.T) {
	fx := newFixture(t)
	writeZip(t, fx.job.PatchFile,
		testFile{name: "assets/APK-META-INF/CERT.SF", data: "sig", method: zip.Deflate},
	)
	_, err := fx.comp.Rebuild(context.Background(), fx.job)
	var missing *MissingEntryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []EventKind{MissingManifest}, fx.rec.kinds())
	require.Len(t, fx.rec.events, 1)
	assert.Equal(t, "test", fx.rec.events[0].Job)
	assert.ErrorIs(t, fx.rec.events[0].Err, err)
	_, err = os.Stat(fx.job.Output)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(fx.job.InfoFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRebuildMissingMetadata(t *testing.T) {
	fx := newFixture(t)
	writeZip(t, fx.job.PatchFile,
		testFile{name: "AndroidManifest.xml", data: "A", method: zip.Deflate},
	)
	res, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	assert.Equal(t, []EventKind{MissingMetadata, Success}, fx.rec.kinds())
	d, _ := readOutput(t, res.Output)
	assert.Nil(t, d.Get("META-INF/CERT.SF"))
}

func TestRebuildCorruptSource(t *testing.T) {
	fx := newFixture(t)
	writeZip(t, fx.job.BaseAPK,
		testFile{name: "res/a.png", data: "base png", method: zip.Store},
	)
	blob, err := os.ReadFile(fx.job.BaseAPK)
	require.NoError(t, err)
	// break the local header signature of the only entry
	blob[0] = 'X'
	require.NoError(t, os.WriteFile(fx.job.BaseAPK, blob, 0644))
	_, err = fx.comp.Rebuild(context.Background(), fx.job)
	var format *zipslicer.FormatError
	require.ErrorAs(t, err, &format)
	assert.Equal(t, []EventKind{Exception}, fx.rec.kinds())
	_, err = os.Stat(fx.job.Output)
	assert.ErrorIs(t, err, os.ErrNotExist)
	entries, err := os.ReadDir(filepath.Dir(fx.job.Output))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial output is discarded")
}

func TestRebuildValidate(t *testing.T) {
	fx := newFixture(t)
	fx.job.Version = ""
	_, err := fx.comp.Rebuild(context.Background(), fx.job)
	assert.Error(t, err)
	assert.Empty(t, fx.rec.kinds())
}

func TestRebuildNoState(t *testing.T) {
	fx := newFixture(t)
	fx.job.InfoFile = ""
	fx.job.LockFile = ""
	first, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	second, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	assert.False(t, second.Reused, "without patch state every run rebuilds")
	assert.Equal(t, first.Digest, second.Digest)
}

func TestAlign(t *testing.T) {
	dir := t.TempDir()
	src := writeZip(t, filepath.Join(dir, "in.apk"),
		testFile{name: "a", data: "0123456789", method: zip.Store},
		testFile{name: "bb", data: "deflated content deflated content", method: zip.Deflate},
		testFile{name: "ccc", data: "stored again", method: zip.Store},
		testFile{name: "empty", method: zip.Deflate},
	)
	dst := filepath.Join(dir, "out.apk")
	n, err := Align(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	d, contents := readOutput(t, dst)
	assertAligned(t, d)
	assert.Equal(t, []string{"a", "bb", "ccc", "empty"}, d.Names())
	assert.Equal(t, "deflated content deflated content", contents["bb"])
	assert.Equal(t, zipslicer.Store, d.Get("empty").Method)

	// deflated bytes are copied through untouched
	in, err := zipslicer.Open(src)
	require.NoError(t, err)
	defer in.Close()
	rawIn, err := in.Get("bb").OpenRaw()
	require.NoError(t, err)
	rawOut, err := d.Get("bb").OpenRaw()
	require.NoError(t, err)
	var bufIn, bufOut bytes.Buffer
	_, err = bufIn.ReadFrom(rawIn)
	require.NoError(t, err)
	_, err = bufOut.ReadFrom(rawOut)
	require.NoError(t, err)
	assert.Equal(t, bufIn.Bytes(), bufOut.Bytes())

	// aligning an aligned container changes nothing
	again := filepath.Join(dir, "again.apk")
	_, err = Align(context.Background(), dst, again)
	require.NoError(t, err)
	d1, err := fileDigest(dst)
	require.NoError(t, err)
	d2, err := fileDigest(again)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, digest.Canonical, d1.Algorithm())
}
