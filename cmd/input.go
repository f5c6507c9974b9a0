/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valpere/listforge/internal/property"
)

// readProperties loads one description or a list of them from a JSON or
// YAML file. The format follows the extension; anything but .yaml/.yml is
// read as JSON.
func readProperties(path string) ([]property.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("input file %s is empty", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var many []property.Description
		if err := yaml.Unmarshal(data, &many); err == nil {
			return many, nil
		}
		var one property.Description
		if err := yaml.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return []property.Description{one}, nil
	default:
		trimmed := bytes.TrimSpace(data)
		if trimmed[0] == '[' {
			var many []property.Description
			if err := json.Unmarshal(trimmed, &many); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			return many, nil
		}
		var one property.Description
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return []property.Description{one}, nil
	}
}
