//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"fmt"
	"io"
	"os"

	"github.com/manetu/authzengine/pkg/core/types"
	"gopkg.in/yaml.v3"
)

// readInput reads path, or stdin for "-" or "".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
}

// parseRequest decodes a check request written as YAML or JSON.
func parseRequest(data []byte) (*types.CheckRequest, error) {
	req := &types.CheckRequest{}
	if err := yaml.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("failed to parse check request: %w", err)
	}
	return req, nil
}
