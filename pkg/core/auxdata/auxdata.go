//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package auxdata provides functionality for loading auxiliary data from
// a directory of files. When mounted from a Kubernetes ConfigMap, each key
// in the ConfigMap becomes a file in the directory.
//
// Files ending in .json, .yml or .yaml are decoded and keyed by their name
// without the extension; any other file is kept as a string under its full
// name.  The result is merged into the input of request mappers under the
// "auxdata" key, making it accessible to Rego as input.auxdata.<key>.
package auxdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Key is the input key auxdata is merged under.
const Key = "auxdata"

var decoded = map[string]bool{".json": true, ".yml": true, ".yaml": true}

// LoadAuxData reads all files in the given directory.  Hidden files (starting
// with ".") and subdirectories are skipped.
//
// Returns nil if path is empty (auxdata not configured).
// Returns an error if the directory cannot be read or any file fails to read
// or decode.
func LoadAuxData(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auxdata directory %s: %w", path, err)
	}

	result := make(map[string]interface{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		// Skip hidden files (e.g., Kubernetes ConfigMap metadata files)
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(path, name)) // #nosec G304 -- intentionally reads from configured path
		if err != nil {
			return nil, fmt.Errorf("failed to read auxdata file %s: %w", name, err)
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !decoded[ext] {
			result[name] = string(data)
			continue
		}

		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode auxdata file %s: %w", name, err)
		}
		result[strings.TrimSuffix(name, filepath.Ext(name))] = v
	}

	return result, nil
}

// MergeAuxData adds auxdata to input under [Key].  Empty auxdata leaves input
// unchanged.
func MergeAuxData(input map[string]interface{}, auxdata map[string]interface{}) map[string]interface{} {
	if len(auxdata) == 0 {
		return input
	}
	if input == nil {
		input = make(map[string]interface{})
	}
	input[Key] = auxdata
	return input
}
