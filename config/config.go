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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sassoftware/apkrebuild/lib/apkcompose"
)

type LoggingConfig struct {
	Level string `yaml:"level"` // zerolog level name, default info
	File  string `yaml:"file"`  // log file, "-" for JSON on stderr, empty for text on stderr
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // write metrics here after each run
}

type JobConfig struct {
	Version   string `yaml:"version"`    // Version of the patch being applied (required)
	BaseAPK   string `yaml:"base_apk"`   // Installed package to patch (required)
	PatchFile string `yaml:"patch_file"` // Patch package (required)
	PatchDir  string `yaml:"patch_dir"`  // Directory the patch was unpacked into
	OutputDir string `yaml:"output_dir"` // Directory for the output, default patch_dir
	Output    string `yaml:"output"`     // Output path, default <output_dir>/<version>_align.apk
	InfoFile  string `yaml:"info_file"`  // Patch state record, default <patch_dir>/patch.info
	LockFile  string `yaml:"lock_file"`  // Lock for the patch state, default <info_file>.lock

	NativeLibDir    string                 `yaml:"native_lib_dir"`   // default <patch_dir>/lib
	NativeLibs      []apkcompose.NativeLib `yaml:"native_libs"`      // Patched native libraries
	StoreNativeLibs bool                   `yaml:"store_native_libs"` // Write native libraries uncompressed
	CodeArchive     string                 `yaml:"code_archive"`     // default <patch_dir>/dex/classes.apk
	ResourceArchive string                 `yaml:"resource_archive"` // default <patch_dir>/res/resources.apk
}

type Config struct {
	Logging     LoggingConfig         `yaml:"logging"`
	Metrics     MetricsConfig         `yaml:"metrics"`
	Layout      apkcompose.Layout     `yaml:"layout"`
	Concurrency int                   `yaml:"concurrency"`
	Jobs        map[string]*JobConfig `yaml:"jobs"`

	path string
}

// ReadFile parses the config at path. Relative paths inside it are taken
// relative to the directory holding the config.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.path = path
	return config, nil
}

// Parse reads a config document and applies defaults
func Parse(data []byte) (*Config, error) {
	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	if config.Concurrency < 0 {
		return nil, errors.New("concurrency must not be negative")
	} else if config.Concurrency == 0 {
		config.Concurrency = runtime.NumCPU()
	}
	config.Layout = config.Layout.Merge(apkcompose.DefaultLayout())
	return config, nil
}

// Path returns the file the config was read from
func (config *Config) Path() string {
	return config.path
}

// JobNames returns the names of all configured jobs in sorted order
func (config *Config) JobNames() []string {
	names := make([]string, 0, len(config.Jobs))
	for name := range config.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetJob returns the named job with every path filled in
func (config *Config) GetJob(name string) (*apkcompose.Job, error) {
	if config.Jobs == nil {
		return nil, errors.New("no jobs defined in configuration")
	}
	jc, ok := config.Jobs[name]
	if !ok || jc == nil {
		return nil, fmt.Errorf("job %q not found in configuration", name)
	}
	job := jc.job(config.resolve)
	job.Name = name
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (config *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || config.path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(config.path), path)
}

func (jc *JobConfig) job(resolve func(string) string) *apkcompose.Job {
	var job apkcompose.Job
	if jc.PatchDir != "" {
		job = apkcompose.JobPaths(resolve(jc.PatchDir), resolve(jc.OutputDir), jc.Version)
	} else if jc.OutputDir != "" {
		job.Output = filepath.Join(resolve(jc.OutputDir), jc.Version+"_align.apk")
	}
	job.Version = jc.Version
	job.BaseAPK = resolve(jc.BaseAPK)
	job.PatchFile = resolve(jc.PatchFile)
	job.NativeLibs = jc.NativeLibs
	job.StoreNativeLibs = jc.StoreNativeLibs
	override(&job.Output, resolve(jc.Output))
	override(&job.InfoFile, resolve(jc.InfoFile))
	override(&job.LockFile, resolve(jc.LockFile))
	override(&job.NativeLibDir, resolve(jc.NativeLibDir))
	override(&job.CodeArchive, resolve(jc.CodeArchive))
	override(&job.ResourceArchive, resolve(jc.ResourceArchive))
	if jc.InfoFile != "" && jc.LockFile == "" {
		job.LockFile = job.InfoFile + ".lock"
	}
	return &job
}

func override(dest *string, value string) {
	if value != "" {
		*dest = value
	}
}
