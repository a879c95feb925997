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

package inspectcmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sassoftware/apkrebuild/cmdline/shared"
	"github.com/sassoftware/apkrebuild/lib/zipslicer"
)

var InspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "List the entries of a package and check their alignment",
	RunE:  inspectCmd,
}

var argVerify bool

func init() {
	shared.RootCmd.AddCommand(InspectCmd)
	InspectCmd.Flags().BoolVar(&argVerify, "verify", false, "Read every entry and check its CRC")
	shared.AddDigestFlag(InspectCmd.Flags())
}

func inspectCmd(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("expected 1 file")
	}
	alg, err := shared.GetDigest()
	if err != nil {
		return err
	}
	d, err := zipslicer.Open(args[0])
	if err != nil {
		return err
	}
	defer d.Close()
	unaligned, err := listEntries(os.Stdout, d)
	if err != nil {
		return err
	}
	if argVerify {
		if err := d.Verify(); err != nil {
			return err
		}
		fmt.Println("all entries verified")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	fd, err := alg.FromReader(f)
	if err != nil {
		return err
	}
	fmt.Printf("%d entries, %d unaligned, digest %s\n", d.Len(), unaligned, fd)
	if unaligned != 0 {
		return fmt.Errorf("%d stored entries are not aligned", unaligned)
	}
	return nil
}

func methodName(method uint16) string {
	switch method {
	case zipslicer.Store:
		return "stored"
	case zipslicer.Deflate:
		return "deflated"
	default:
		return fmt.Sprintf("method%d", method)
	}
}

// listEntries prints one line per entry and counts the stored entries whose
// content is misaligned
func listEntries(w io.Writer, d *zipslicer.Directory) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "offset\tdata\tmethod\tsize\tcompressed\taligned\tname\t")
	var unaligned int
	for _, f := range d.Entries() {
		dataOffset, err := f.DataOffset()
		if err != nil {
			return 0, err
		}
		aligned := "-"
		if f.Method == zipslicer.Store {
			aligned = "yes"
			if dataOffset%zipslicer.Alignment != 0 {
				aligned = "NO"
				unaligned++
			}
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%s\t%s\t\n",
			f.Offset, dataOffset, methodName(f.Method), f.UncompressedSize, f.CompressedSize, aligned, f.Name)
	}
	return unaligned, tw.Flush()
}
