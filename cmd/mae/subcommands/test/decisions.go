//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/manetu/authzengine/cmd/mae/common"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// TestCase represents a single decision test case
type TestCase struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Request     types.CheckRequest `yaml:"request"`
	Result      TestResult         `yaml:"result"`
}

// TestResult represents the expected result of a test
type TestResult struct {
	Allow bool `yaml:"allow"`
}

// TestSuite represents a collection of test cases
type TestSuite struct {
	Tests []TestCase `yaml:"tests"`
}

// ExecuteDecisions runs a suite of decision tests from a YAML file
func ExecuteDecisions(ctx context.Context, cmd *cli.Command) error {
	return executeDecisions(ctx, cmd, os.Stdout)
}

func executeDecisions(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	testSuite, err := loadTestSuite(cmd.String("input"))
	if err != nil {
		return fmt.Errorf("failed to load test suite: %w", err)
	}

	if len(testSuite.Tests) == 0 {
		return fmt.Errorf("no tests found in test suite")
	}

	testsToRun := filterTests(testSuite.Tests, cmd.StringSlice("test"))
	if len(testsToRun) == 0 {
		return fmt.Errorf("no tests match the specified patterns")
	}

	m, err := common.NewCliManager(ctx, cmd, accessLogWriter(cmd), false)
	if err != nil {
		return err
	}
	defer m.Close()

	passed := 0
	failed := 0

	for _, tc := range testsToRun {
		req := tc.Request
		allowed, err := common.Decide(ctx, m, &req)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%s: ERROR (%v)\n", tc.Name, err)
			failed++
			continue
		}

		if allowed == tc.Result.Allow {
			_, _ = fmt.Fprintf(out, "%s: PASS\n", tc.Name)
			passed++
		} else {
			_, _ = fmt.Fprintf(out, "%s: FAIL (expected allow=%t, got allow=%t)\n", tc.Name, tc.Result.Allow, allowed)
			failed++
		}
	}

	total := passed + failed
	_, _ = fmt.Fprintf(out, "\n%d/%d tests passed\n", passed, total)

	if failed > 0 {
		return cli.Exit("", 1)
	}

	return nil
}

// loadTestSuite reads and parses a test suite from a YAML file
func loadTestSuite(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse test file: %w", err)
	}

	return &suite, nil
}

// filterTests returns tests that match the specified patterns.
// If no patterns are specified, all tests are returned.
// Patterns support glob matching (e.g., "mary-*" matches "mary-cannot-start").
func filterTests(tests []TestCase, patterns []string) []TestCase {
	if len(patterns) == 0 {
		return tests
	}

	var filtered []TestCase
	for _, tc := range tests {
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, tc.Name)
			if err != nil {
				// Invalid pattern - treat as literal match
				if pattern == tc.Name {
					filtered = append(filtered, tc)
					break
				}
			} else if matched {
				filtered = append(filtered, tc)
				break
			}
		}
	}

	return filtered
}
