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

package aligncmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sassoftware/apkrebuild/cmdline/shared"
	"github.com/sassoftware/apkrebuild/lib/apkcompose"
)

var AlignCmd = &cobra.Command{
	Use:   "align <input> <output>",
	Short: "Rewrite a package so that stored entries are 4-byte aligned",
	Long: `Rewrite a package so that the content of every stored entry starts on a
4-byte boundary. Compressed content is copied without being recompressed.
Use "-" as the output to write to standard output.`,
	RunE: alignCmd,
}

func init() {
	shared.RootCmd.AddCommand(AlignCmd)
}

func alignCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return errors.New("expected an input and an output file")
	}
	if err := shared.SetupLogging(); err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	ctx := log.Logger.WithContext(context.Background())
	n, err := apkcompose.Align(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	log.Info().Str("output", args[1]).Int("entries", n).Msg("aligned package")
	return nil
}
