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

package main

import (
	"runtime/debug"
	"strings"

	"github.com/sassoftware/apkrebuild/cmdline/shared"

	_ "github.com/sassoftware/apkrebuild/cmdline/aligncmd"
	_ "github.com/sassoftware/apkrebuild/cmdline/inspectcmd"
	_ "github.com/sassoftware/apkrebuild/cmdline/rebuildcmd"
)

var (
	version = "unknown" // set this at link time
	commit  = "unknown" // set this at link time
)

func main() {
	if version != "unknown" {
		shared.Version = version + " (" + commit + ")"
	} else if bi, ok := debug.ReadBuildInfo(); ok {
		// built from go module with `go install`
		if strings.HasPrefix(bi.Main.Version, "v") {
			shared.Version = bi.Main.Version
		}
	}
	shared.Main()
}
