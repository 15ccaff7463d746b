//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// buildTestCommand creates a CLI command structure for testing the test subcommands
func buildTestCommand(decision, decisions cli.ActionFunc) *cli.Command {
	flags := func(extra ...cli.Flag) []cli.Flag {
		return append(extra,
			&cli.StringSliceFlag{Name: "bundle", Aliases: []string{"b"}},
			&cli.StringFlag{Name: "provider"},
			&cli.StringFlag{Name: "provider-package"})
	}
	return &cli.Command{
		Name: "mae",
		// exit codes are returned to the test rather than ending the process
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "trace",
				Value: false,
			},
		},
		Commands: []*cli.Command{
			{
				Name: "test",
				Commands: []*cli.Command{
					{
						Name:   "decision",
						Flags:  flags(&cli.StringFlag{Name: "input", Aliases: []string{"i"}}),
						Action: decision,
					},
					{
						Name: "decisions",
						Flags: flags(
							&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true},
							&cli.StringSliceFlag{Name: "test"},
						),
						Action: decisions,
					},
				},
			},
		},
	}
}

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func runDecisions(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := buildTestCommand(nil, func(ctx context.Context, cmd *cli.Command) error {
		return executeDecisions(ctx, cmd, &out)
	})
	err := cmd.Run(context.Background(), append([]string{"mae", "test", "decisions"}, args...))
	return out.String(), err
}

// TestLoadTestSuite tests the YAML parsing of test suites
func TestLoadTestSuite(t *testing.T) {
	suite, err := loadTestSuite(testdata("decisions.yaml"))
	require.NoError(t, err)
	require.NotNil(t, suite)

	require.Len(t, suite.Tests, 7)
	first := suite.Tests[0]
	assert.Equal(t, "demo-starts-invoice", first.Name)
	assert.Equal(t, "group grant on the definition key", first.Description)
	assert.Equal(t, "demo", first.Request.UserID)
	assert.Equal(t, "CREATE_INSTANCE", first.Request.Permission)
	assert.Equal(t, "invoice", first.Request.ResourceID)
	assert.True(t, first.Result.Allow)

	assert.Equal(t, []string{"operaton-admin"}, suite.Tests[6].Request.GroupIDs)
}

// TestLoadTestSuite_FileNotFound tests error handling for missing files
func TestLoadTestSuite_FileNotFound(t *testing.T) {
	_, err := loadTestSuite("nonexistent-file.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read test file")
}

// TestLoadTestSuite_InvalidYAML tests error handling for invalid YAML
func TestLoadTestSuite_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: content: ["), 0o600))

	_, err := loadTestSuite(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse test file")
}

// TestFilterTests tests the glob pattern matching for test filtering
func TestFilterTests(t *testing.T) {
	tests := []TestCase{
		{Name: "mary-can-read"},
		{Name: "mary-cannot-start"},
		{Name: "john-reads-task"},
		{Name: "admin-deletes"},
	}

	assert.Len(t, filterTests(tests, nil), 4)
	assert.Len(t, filterTests(tests, []string{}), 4)

	filtered := filterTests(tests, []string{"mary-can-read"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "mary-can-read", filtered[0].Name)

	filtered = filterTests(tests, []string{"mary-*"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "mary-can-read", filtered[0].Name)
	assert.Equal(t, "mary-cannot-start", filtered[1].Name)

	assert.Len(t, filterTests(tests, []string{"mary-*", "john-*"}), 3)
	assert.Len(t, filterTests(tests, []string{"nonexistent-*"}), 0)
	assert.Len(t, filterTests(tests, []string{"*"}), 4)

	// an invalid pattern only matches literally
	assert.Len(t, filterTests([]TestCase{{Name: "["}}, []string{"["}), 1)
}

func TestExecuteDecisions(t *testing.T) {
	out, err := runDecisions(t, "-i", testdata("decisions.yaml"), "-b", testdata("bundle.yml"))
	require.NoError(t, err, out)

	assert.Contains(t, out, "demo-starts-invoice: PASS")
	assert.Contains(t, out, "mary-cannot-start: PASS")
	assert.Contains(t, out, "assignee-updates-task: PASS")
	assert.Contains(t, out, "7/7 tests passed")
}

func TestExecuteDecisions_Filtered(t *testing.T) {
	out, err := runDecisions(t, "-i", testdata("decisions.yaml"), "-b", testdata("bundle.yml"), "--test", "mary-*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2/2 tests passed")
	assert.NotContains(t, out, "john")

	_, err = runDecisions(t, "-i", testdata("decisions.yaml"), "-b", testdata("bundle.yml"), "--test", "nobody-*")
	assert.ErrorContains(t, err, "no tests match the specified patterns")
}

func TestExecuteDecisions_Failures(t *testing.T) {
	out, err := runDecisions(t, "-i", testdata("failing.yaml"), "-b", testdata("bundle.yml"))
	require.Error(t, err)

	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())

	assert.Contains(t, out, "john-starts-invoice: FAIL (expected allow=true, got allow=false)")
	assert.Contains(t, out, "unknown-resource: ERROR (unknown resource 'Spaceship'")
	assert.Contains(t, out, "0/2 tests passed")
}

// TestExecuteDecisions_MissingBundle tests decisions command with missing bundle
func TestExecuteDecisions_MissingBundle(t *testing.T) {
	_, err := runDecisions(t, "-i", testdata("decisions.yaml"))
	assert.Error(t, err, "ExecuteDecisions should fail without bundle")
	assert.Contains(t, err.Error(), "bundle", "Error should mention missing bundle")
}

// TestExecuteDecisions_MissingInputFile tests decisions command with missing input file
func TestExecuteDecisions_MissingInputFile(t *testing.T) {
	_, err := runDecisions(t, "-i", "nonexistent.yaml", "-b", testdata("bundle.yml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load test suite")
}

// TestExecuteDecisions_EmptyTestSuite tests decisions command with empty test suite
func TestExecuteDecisions_EmptyTestSuite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tests: []\n"), 0o600))

	_, err := runDecisions(t, "-i", path, "-b", testdata("bundle.yml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no tests found")
}

func TestExecuteDecisions_RegoProvider(t *testing.T) {
	// the rego provider grants assignees TASK_WORK only
	policy := filepath.Join(t.TempDir(), "provider.rego")
	require.NoError(t, os.WriteFile(policy, []byte(`package tasks

default grants := []

grants := [{"userId": input.task.assignee, "permissions": ["TASK_WORK"]}] if {
	input.event == "newTask"
	input.task.assignee != ""
}
`), 0o600))

	suite := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(suite, []byte(strings.TrimSpace(`
tests:
  - name: assignee-works
    request: {userId: demo, permission: TASK_WORK, resource: Task, resourceId: task-1}
    result: {allow: true}
  - name: assignee-cannot-update
    request: {userId: demo, permission: UPDATE, resource: Task, resourceId: task-1}
    result: {allow: false}
`)), 0o600))

	out, err := runDecisions(t, "-i", suite, "-b", testdata("bundle.yml"),
		"--provider", policy, "--provider-package", "tasks")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2/2 tests passed")
}
