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
	"errors"
	"fmt"
	"os"

	"github.com/sassoftware/apkrebuild/config"
	"github.com/sassoftware/apkrebuild/internal/logsetup"
)

var CurrentConfig *config.Config

// InitConfig loads the file named by --config, or the default config
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	usedDefault := false
	if ArgConfig == "" {
		ArgConfig = config.DefaultConfig()
		if ArgConfig == "" {
			return errors.New("--config not specified")
		}
		usedDefault = true
	}
	cfg, err := config.ReadFile(ArgConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && usedDefault {
			return fmt.Errorf("--config not specified and default config at %s does not exist", ArgConfig)
		}
		return err
	}
	CurrentConfig = cfg
	return nil
}

// SetupLogging configures logging from the loaded config, if any, with
// --log-level taking precedence
func SetupLogging() error {
	var level, file string
	if CurrentConfig != nil {
		level = CurrentConfig.Logging.Level
		file = CurrentConfig.Logging.File
	}
	if ArgLogLevel != "" {
		level = ArgLogLevel
	}
	return logsetup.Setup(level, file)
}
