//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

var testBundle = filepath.Join("..", "subcommands", "test", "testdata", "bundle.yml")

// withCommand runs fn as the action of a command parsed from args.
func withCommand(t *testing.T, args []string, fn func(ctx context.Context, cmd *cli.Command) error) {
	t.Helper()
	cmd := &cli.Command{
		Name: "mae",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "trace"},
			&cli.StringSliceFlag{Name: "bundle", Aliases: []string{"b"}},
			&cli.StringFlag{Name: "provider"},
			&cli.StringFlag{Name: "provider-package"},
		},
		Action: fn,
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"mae"}, args...)))
}

func TestNewCliManager(t *testing.T) {
	var access bytes.Buffer
	withCommand(t, []string{"-b", testBundle}, func(ctx context.Context, cmd *cli.Command) error {
		m, err := NewCliManager(ctx, cmd, &access, false)
		require.NoError(t, err)
		defer m.Close()

		assert.Equal(t, "invoices", m.Bundle.Metadata.Name)
		assert.Equal(t, 3, m.Summary.Authorizations)
		assert.Equal(t, 2, m.Summary.Memberships)
		assert.Equal(t, 1, m.Summary.Provided)

		// memberships from the bundle are resolved by the manager
		auth, err := m.Authenticate(ctx, "mary")
		require.NoError(t, err)
		assert.Equal(t, []string{"accounting"}, auth.GroupIDs)

		assert.Contains(t, m.Repository.Snapshot().Tasks, "task-1")

		allow, err := Decide(ctx, m, &types.CheckRequest{UserID: "demo", Permission: "CREATE_INSTANCE",
			Resource: "ProcessDefinition", ResourceID: "invoice"})
		require.NoError(t, err)
		assert.True(t, allow)
		return nil
	})
	assert.Contains(t, access.String(), "demo")
}

func TestNewCliManagerRequiresBundle(t *testing.T) {
	withCommand(t, nil, func(ctx context.Context, cmd *cli.Command) error {
		_, err := NewCliManager(ctx, cmd, &bytes.Buffer{}, false)
		assert.ErrorContains(t, err, "at least one bundle must be specified")

		// persistent managers may start empty
		m, err := NewCliManager(ctx, cmd, &bytes.Buffer{}, true)
		require.NoError(t, err)
		defer m.Close()
		assert.Nil(t, m.Bundle)
		return nil
	})
}

func TestNewCliManagerBadProvider(t *testing.T) {
	withCommand(t, []string{"-b", testBundle, "--provider", "missing.rego"}, func(ctx context.Context, cmd *cli.Command) error {
		_, err := NewCliManager(ctx, cmd, &bytes.Buffer{}, false)
		assert.ErrorContains(t, err, "failed to read provider")
		return nil
	})
}

func TestDecideRejects(t *testing.T) {
	withCommand(t, []string{"-b", testBundle}, func(ctx context.Context, cmd *cli.Command) error {
		m, err := NewCliManager(ctx, cmd, &bytes.Buffer{}, false)
		require.NoError(t, err)
		defer m.Close()

		_, err = Decide(ctx, m, &types.CheckRequest{Permission: "READ", Resource: "Task"})
		assert.ErrorContains(t, err, "userId is required")

		_, err = Decide(ctx, m, &types.CheckRequest{UserID: "demo", Permission: "READ", Resource: "Nowhere"})
		assert.ErrorContains(t, err, "unknown resource 'Nowhere'")

		allow, err := Decide(ctx, m, &types.CheckRequest{UserID: "john", Permission: resources.TaskPerms.Read.Name,
			Resource: "Task", ResourceID: "task-1"})
		require.NoError(t, err)
		assert.True(t, allow)
		return nil
	})
}
