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

// Package apkcompose rebuilds an application package from a base package, a
// patch package and the artifacts generated from the patch. Entries are merged
// in a fixed order of precedence and written out with stored entries aligned.
package apkcompose

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Layout names the well-known entries and prefixes used during composition
type Layout struct {
	// Manifest is copied from the patch and never taken from anywhere else
	Manifest string `yaml:"manifest"`
	// MetaSource is the prefix in the patch under which signature metadata is shipped
	MetaSource string `yaml:"meta_source"`
	// MetaOutput is the directory the metadata is renamed into
	MetaOutput string `yaml:"meta_output"`
	// NativeLibs is the archive directory holding native libraries
	NativeLibs string `yaml:"native_libs"`
	// TestCode is left out when copying the generated code archive
	TestCode string `yaml:"test_code"`
}

// DefaultLayout returns the layout of a standard Android package
func DefaultLayout() Layout {
	return Layout{
		Manifest:   "AndroidManifest.xml",
		MetaSource: "assets/APK-META-INF/",
		MetaOutput: "META-INF",
		NativeLibs: "lib",
		TestCode:   "test.dex",
	}
}

// Merge fills in any unset fields of l from def
func (l Layout) Merge(def Layout) Layout {
	if l.Manifest == "" {
		l.Manifest = def.Manifest
	}
	if l.MetaSource == "" {
		l.MetaSource = def.MetaSource
	}
	if l.MetaOutput == "" {
		l.MetaOutput = def.MetaOutput
	}
	if l.NativeLibs == "" {
		l.NativeLibs = def.NativeLibs
	}
	if l.TestCode == "" {
		l.TestCode = def.TestCode
	}
	return l
}

// NativeLib identifies one patched native library in the staging directory
type NativeLib struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Job describes one package rebuild
type Job struct {
	Name    string
	Version string
	// BaseAPK is the installed package being patched
	BaseAPK string
	// PatchFile is the patch package carrying the new manifest and metadata
	PatchFile string
	// NativeLibDir is the staging directory of patched native libraries
	NativeLibDir string
	NativeLibs   []NativeLib
	// StoreNativeLibs writes native libraries uncompressed, and so aligned
	StoreNativeLibs bool
	// CodeArchive and ResourceArchive are generated containers that are
	// skipped if they do not exist
	CodeArchive     string
	ResourceArchive string
	// Output is the aligned package to produce
	Output string
	// InfoFile records the version and digest of the last output, guarded by LockFile
	InfoFile string
	LockFile string
	// Force rebuilds even if the recorded output is still valid
	Force bool
}

// JobPaths derives the conventional file locations of a job from the
// directory the patch was unpacked into
func JobPaths(patchDir, outputDir, version string) Job {
	if outputDir == "" {
		outputDir = patchDir
	}
	return Job{
		NativeLibDir:    filepath.Join(patchDir, "lib"),
		CodeArchive:     filepath.Join(patchDir, "dex", "classes.apk"),
		ResourceArchive: filepath.Join(patchDir, "res", "resources.apk"),
		Output:          filepath.Join(outputDir, version+"_align.apk"),
		InfoFile:        filepath.Join(patchDir, "patch.info"),
		LockFile:        filepath.Join(patchDir, "patch.info.lock"),
	}
}

// Validate checks that the job names everything a rebuild needs
func (j *Job) Validate() error {
	switch {
	case j.Version == "":
		return fmt.Errorf("job %q: version is required", j.Name)
	case j.BaseAPK == "":
		return fmt.Errorf("job %q: base_apk is required", j.Name)
	case j.PatchFile == "":
		return fmt.Errorf("job %q: patch_file is required", j.Name)
	case j.Output == "":
		return fmt.Errorf("job %q: output is required", j.Name)
	}
	if j.InfoFile != "" && j.LockFile == "" {
		j.LockFile = j.InfoFile + ".lock"
	}
	return nil
}

// MissingEntryError is returned when a required entry is absent from its source
type MissingEntryError struct {
	Source string
	Name   string
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("%s: required entry %s not found", e.Source, e.Name)
}

// Traverses reports whether an entry name has a parent directory segment
// when split on either kind of path separator
func Traverses(name string) bool {
	for _, seg := range strings.FieldsFunc(name, isSeparator) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// archive name of a native library
func (l Layout) nativeLibName(lib NativeLib) string {
	return path.Join(l.NativeLibs, lib.Path, lib.Name)
}

// archive name a patch metadata entry is renamed to
func (l Layout) metaName(name string) string {
	return l.MetaOutput + "/" + name[strings.LastIndexByte(name, '/')+1:]
}
