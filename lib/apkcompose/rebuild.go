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
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"github.com/sassoftware/apkrebuild/lib/atomicfile"
	"github.com/sassoftware/apkrebuild/lib/patchinfo"
	"github.com/sassoftware/apkrebuild/lib/zipslicer"
)

// Composer rebuilds packages and reports the outcome of each job
type Composer struct {
	Layout   Layout
	Reporter Reporter
}

// New creates a composer. Unset layout fields take their default value.
func New(layout Layout, reporter Reporter) *Composer {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Composer{Layout: layout.Merge(DefaultLayout()), Reporter: reporter}
}

// Result describes the output of a rebuild
type Result struct {
	Output string
	Digest digest.Digest
	// Entries is the number of entries written
	Entries int
	// Reused is true if the existing output was still valid and nothing was written
	Reused bool
}

// Rebuild composes the job's output package, unless the output recorded for
// the same version is already present and intact. The output only appears
// once it has been written in full and verified, and the patch state is
// then updated to record its digest.
func (c *Composer) Rebuild(ctx context.Context, job *Job) (res Result, err error) {
	if err := job.Validate(); err != nil {
		return res, err
	}
	logger := zerolog.Ctx(ctx).With().
		Str("job", job.Name).
		Str("job_id", uuid.NewString()).
		Str("version", job.Version).
		Logger()
	ctx = logger.WithContext(ctx)
	res.Output = job.Output
	start := time.Now()
	defer func() {
		result := "built"
		if err != nil {
			result = "failed"
		} else if res.Reused {
			result = "reused"
		}
		metricDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	if !job.Force {
		d, ok, err := c.existing(ctx, job)
		if err != nil {
			c.report(ctx, job, Exception, err)
			return res, err
		} else if ok {
			logger.Info().Str("digest", d.String()).Msg("output is up to date")
			metricSkipped.Inc()
			res.Digest = d
			res.Reused = true
			return res, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		c.report(ctx, job, Exception, err)
		return res, err
	}
	comp, err := Compose(ctx, c.Layout, job)
	if err != nil {
		kind := Exception
		if missing := new(MissingEntryError); errors.As(err, &missing) {
			kind = MissingManifest
		}
		c.report(ctx, job, kind, err)
		return res, err
	}
	defer comp.Close()
	if !comp.MetadataFound {
		c.report(ctx, job, MissingMetadata, nil)
	}
	if err := ctx.Err(); err != nil {
		c.report(ctx, job, Exception, err)
		return res, err
	}
	res.Digest, err = writeVerified(job.Output, comp.Entries())
	if err != nil {
		kind := Exception
		if errors.Is(err, errVerify) {
			kind = BuildFailed
		}
		c.report(ctx, job, kind, err)
		return res, err
	}
	res.Entries = len(comp.Entries())
	if job.InfoFile != "" {
		info := patchinfo.Info{Version: job.Version, Digest: res.Digest}
		if err := patchinfo.RewriteWithLock(job.InfoFile, job.LockFile, info); err != nil {
			err = fmt.Errorf("updating patch state: %w", err)
			c.report(ctx, job, Exception, err)
			return res, err
		}
	}
	logger.Info().
		Str("digest", res.Digest.String()).
		Int("entries", res.Entries).
		Dur("elapsed", time.Since(start)).
		Msg("rebuilt package")
	c.report(ctx, job, Success, nil)
	return res, nil
}

func (c *Composer) report(ctx context.Context, job *Job, kind EventKind, err error) {
	c.Reporter.Report(ctx, Event{Job: job.Name, Kind: kind, Output: job.Output, Err: err})
}

// existing checks whether the output on disk is the one recorded for this
// version. A stale output is removed.
func (c *Composer) existing(ctx context.Context, job *Job) (digest.Digest, bool, error) {
	if job.InfoFile == "" {
		return "", false, nil
	}
	d, err := fileDigest(job.Output)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	info, err := patchinfo.ReadWithLock(job.InfoFile, job.LockFile)
	if err != nil {
		return "", false, err
	}
	if info.Matches(job.Version, d) {
		return d, true, nil
	}
	zerolog.Ctx(ctx).Warn().
		Str("recorded_version", info.Version).
		Str("recorded_digest", info.Digest.String()).
		Str("digest", d.String()).
		Msg("existing output does not match patch state, rebuilding")
	if err := os.Remove(job.Output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}
	return "", false, nil
}

func fileDigest(name string) (digest.Digest, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.Canonical.FromReader(f)
}

var errVerify = errors.New("output failed verification")

// writeVerified writes entries to a temporary file, re-reads and checks it,
// and only then moves it into place
func writeVerified(output string, entries []*zipslicer.Entry) (digest.Digest, error) {
	f, err := atomicfile.New(output)
	if err != nil {
		return "", err
	}
	defer f.Close()
	digester := digest.Canonical.Digester()
	w := zipslicer.NewWriter(io.MultiWriter(f, digester.Hash()))
	for _, entry := range entries {
		if err := w.Write(entry); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	if err := verifyFile(f.Name(), len(entries)); err != nil {
		return "", fmt.Errorf("%w: %w", errVerify, err)
	}
	if err := f.Commit(); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}

func verifyFile(name string, count int) error {
	d, err := zipslicer.Open(name)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.Len() != count {
		return fmt.Errorf("wrote %d entries but read back %d", count, d.Len())
	}
	return d.Verify()
}

// Align rewrites the container at src to dst with every stored entry aligned.
// Entry contents are copied without recompression. A dst of "-" writes to
// standard output.
func Align(ctx context.Context, src, dst string) (int, error) {
	d, err := zipslicer.Open(src)
	if err != nil {
		return 0, err
	}
	defer d.Close()
	f, err := atomicfile.WriteAny(dst)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w := zipslicer.NewWriter(f)
	for _, entry := range d.Entries() {
		if err := w.Write(entry); err != nil {
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if err := f.Commit(); err != nil {
		return 0, err
	}
	zerolog.Ctx(ctx).Debug().Str("src", src).Str("dst", dst).Int("entries", d.Len()).Msg("aligned container")
	return d.Len(), nil
}
