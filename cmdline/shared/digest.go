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

package shared

import (
	"fmt"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/pflag"
)

var ArgDigest string

var DefaultDigest = digest.Canonical

// AddDigestFlag registers --digest on a command's flag set
func AddDigestFlag(flags *pflag.FlagSet) {
	flags.StringVar(&ArgDigest, "digest", DefaultDigest.String(), "Digest algorithm for reporting file digests")
}

// GetDigest returns the algorithm selected with --digest
func GetDigest() (digest.Algorithm, error) {
	if ArgDigest == "" {
		return DefaultDigest, nil
	}
	alg := digest.Algorithm(ArgDigest)
	if !alg.Available() {
		return "", fmt.Errorf("unsupported digest %q", ArgDigest)
	}
	return alg, nil
}
