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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sassoftware/apkrebuild/lib/zipslicer"
)

// Composition is the ordered set of entries making up a rebuilt package.
// Entries read from source containers stay lazy, so the composition keeps
// those containers open until it is closed.
type Composition struct {
	layout  Layout
	job     *Job
	logger  *zerolog.Logger
	entries []*zipslicer.Entry
	added   map[string]bool
	sources []*zipslicer.Directory
	// MetadataFound is false if the patch carried no signature metadata
	MetadataFound bool
}

// Entries returns the composed entries in output order
func (c *Composition) Entries() []*zipslicer.Entry {
	return c.entries
}

// Close releases the source containers
func (c *Composition) Close() error {
	var errs []error
	for _, d := range c.sources {
		errs = append(errs, d.Close())
	}
	c.sources = nil
	return errors.Join(errs...)
}

// Compose runs every composition phase for the job. The context is checked
// between phases. A missing manifest is returned as a *MissingEntryError.
func Compose(ctx context.Context, layout Layout, job *Job) (*Composition, error) {
	c := &Composition{
		layout: layout,
		job:    job,
		logger: zerolog.Ctx(ctx),
		added:  make(map[string]bool),
	}
	patch, err := c.open(job.PatchFile)
	if err != nil {
		return nil, err
	}
	phases := []struct {
		name string
		run  func() error
	}{
		{"manifest", func() error { return c.copyManifest(patch) }},
		{"metadata", func() error { c.copyMetadata(patch); return nil }},
		{"native", c.addNativeLibs},
		{"code", c.copyCode},
		{"resources", c.copyResources},
		{"base", c.copyBase},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			c.Close()
			return nil, err
		}
		before := len(c.entries)
		if err := phase.run(); err != nil {
			c.Close()
			return nil, err
		}
		added := len(c.entries) - before
		metricEntries.WithLabelValues(phase.name).Add(float64(added))
		c.logger.Debug().Str("phase", phase.name).Int("entries", added).Msg("phase complete")
	}
	return c, nil
}

func (c *Composition) open(name string) (*zipslicer.Directory, error) {
	d, err := zipslicer.Open(name)
	if err != nil {
		return nil, err
	}
	c.sources = append(c.sources, d)
	return d, nil
}

// openOptional opens a generated container, returning nil if it was not generated
func (c *Composition) openOptional(name string) (*zipslicer.Directory, error) {
	if name == "" {
		return nil, nil
	}
	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
		c.logger.Info().Str("path", name).Msg("generated container not found, skipping")
		return nil, nil
	}
	return c.open(name)
}

// accept applies the rules shared by every phase: no parent directory
// segments, and the first entry offered under a name wins
func (c *Composition) accept(name, source string) bool {
	if Traverses(name) {
		c.logger.Debug().Str("entry", name).Str("source", source).Msg("rejected entry with parent directory segment")
		return false
	}
	if c.added[name] {
		c.logger.Debug().Str("entry", name).Str("source", source).Msg("skipped entry already added")
		return false
	}
	return true
}

func (c *Composition) add(f *zipslicer.Entry) {
	c.added[f.Name] = true
	c.entries = append(c.entries, f)
}

func (c *Composition) copyManifest(patch *zipslicer.Directory) error {
	f := patch.Get(c.layout.Manifest)
	if f == nil {
		return &MissingEntryError{Source: c.job.PatchFile, Name: c.layout.Manifest}
	}
	if c.accept(f.Name, "patch") {
		c.add(f)
	}
	return nil
}

func (c *Composition) copyMetadata(patch *zipslicer.Directory) {
	for _, f := range patch.Entries() {
		if f.IsDir() || !strings.HasPrefix(f.Name, c.layout.MetaSource) || Traverses(f.Name) {
			continue
		}
		name := c.layout.metaName(f.Name)
		if !c.accept(name, "patch") {
			continue
		}
		c.add(f.Clone(name))
		c.MetadataFound = true
	}
}

func (c *Composition) addNativeLibs() error {
	for _, lib := range c.job.NativeLibs {
		if Traverses(lib.Path) || Traverses(lib.Name) {
			c.logger.Debug().Str("path", lib.Path).Str("name", lib.Name).Msg("rejected native library with parent directory segment")
			continue
		}
		name := c.layout.nativeLibName(lib)
		if !c.accept(name, "native") {
			continue
		}
		src := filepath.Join(c.job.NativeLibDir, filepath.FromSlash(lib.Path), lib.Name)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			c.logger.Warn().Str("path", src).Msg("native library not found, skipping")
			continue
		}
		method := zipslicer.Deflate
		if c.job.StoreNativeLibs {
			method = zipslicer.Store
		}
		f, err := zipslicer.NewFileEntry(name, src, method)
		if err != nil {
			return fmt.Errorf("native library %s: %w", src, err)
		}
		c.add(f)
	}
	return nil
}

func (c *Composition) copyCode() error {
	d, err := c.openOptional(c.job.CodeArchive)
	if err != nil || d == nil {
		return err
	}
	for _, f := range d.Entries() {
		if f.IsDir() || strings.EqualFold(f.Name, c.layout.TestCode) {
			continue
		}
		if c.accept(f.Name, "code") {
			c.add(f)
		}
	}
	return nil
}

func (c *Composition) copyResources() error {
	d, err := c.openOptional(c.job.ResourceArchive)
	if err != nil || d == nil {
		return err
	}
	for _, f := range d.Entries() {
		if f.IsDir() || strings.EqualFold(f.Name, c.layout.Manifest) {
			continue
		}
		if c.accept(f.Name, "resources") {
			c.add(f)
		}
	}
	return nil
}

func (c *Composition) copyBase() error {
	d, err := c.open(c.job.BaseAPK)
	if err != nil {
		return err
	}
	for _, f := range d.Entries() {
		if strings.EqualFold(f.Name, c.layout.Manifest) || strings.HasPrefix(f.Name, c.layout.MetaOutput) {
			continue
		}
		if c.accept(f.Name, "base") {
			c.add(f)
		}
	}
	return nil
}
