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

package rebuildcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sassoftware/apkrebuild/cmdline/shared"
	"github.com/sassoftware/apkrebuild/lib/apkcompose"
)

var RebuildCmd = &cobra.Command{
	Use:   "rebuild [job...]",
	Short: "Rebuild the aligned package for each configured job",
	Long: `Rebuild the aligned package for the named jobs, or every job in the
configuration if none are named. A job whose recorded output is still intact
is skipped unless --force is given.`,
	RunE: rebuildCmd,
}

var (
	argForce       bool
	argConcurrency int
)

func init() {
	shared.RootCmd.AddCommand(RebuildCmd)
	RebuildCmd.Flags().BoolVarP(&argForce, "force", "f", false, "Rebuild even if the existing output is up to date")
	RebuildCmd.Flags().IntVarP(&argConcurrency, "jobs", "j", 0, "Number of jobs to run at once (default from config)")
}

func rebuildCmd(cmd *cobra.Command, args []string) error {
	if err := shared.InitConfig(); err != nil {
		return err
	}
	if err := shared.SetupLogging(); err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	cfg := shared.CurrentConfig
	names := args
	if len(names) == 0 {
		names = cfg.JobNames()
	}
	if len(names) == 0 {
		return errors.New("no jobs defined in configuration")
	}
	jobs := make([]*apkcompose.Job, len(names))
	for i, name := range names {
		job, err := cfg.GetJob(name)
		if err != nil {
			return err
		}
		job.Force = argForce
		jobs[i] = job
	}
	limit := cfg.Concurrency
	if argConcurrency > 0 {
		limit = argConcurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)
	composer := apkcompose.New(cfg.Layout, apkcompose.LogReporter{})
	var (
		mu     sync.Mutex
		failed []string
	)
	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, job := range jobs {
		job := job
		eg.Go(func() error {
			res, err := composer.Rebuild(ctx, job)
			if err != nil {
				mu.Lock()
				failed = append(failed, job.Name)
				mu.Unlock()
				fmt.Printf("%s: FAILED: %s\n", job.Name, err)
				return nil
			}
			state := "rebuilt"
			if res.Reused {
				state = "up to date"
			}
			fmt.Printf("%s: %s %s %s\n", job.Name, state, res.Output, res.Digest)
			return nil
		})
	}
	_ = eg.Wait()
	if cfg.Metrics.Textfile != "" {
		if err := apkcompose.WriteMetrics(cfg.Metrics.Textfile); err != nil {
			log.Error().Err(err).Str("path", cfg.Metrics.Textfile).Msg("failed to write metrics")
		}
	}
	if len(failed) != 0 {
		return fmt.Errorf("%d of %d jobs failed", len(failed), len(jobs))
	}
	return ctx.Err()
}
