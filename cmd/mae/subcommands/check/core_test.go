//
//  Copyright © Manetu Inc. All rights reserved.
//

package check

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const good = "../test/testdata/bundle.yml"

func TestCheckValid(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, []string{good})
	require.NoError(t, err, out.String())

	assert.Contains(t, out.String(), "✓ "+good+": 3 authorization(s), 1 group(s), 0 tenant(s)")
	assert.Contains(t, out.String(), "All checks passed: 1 path(s), 3 authorization(s), 2 membership(s), 1 provided record(s)")
}

func TestCheckReportsEveryError(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte(`apiVersion: authz.manetu.io/v1
kind: AuthorizationBundle
spec:
  authorizations:
    - type: GRANT
      resource: Task
      userId: demo
      permissions: [CREATE_INSTANCE]
    - type: GRANT
      resource: Nowhere
      groupId: sales
`), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{good, bad})
	assert.ErrorContains(t, err, "check failed: 1 path(s) with errors")

	assert.Contains(t, out.String(), "✗ "+bad)
	assert.Contains(t, out.String(), "not valid for 'CREATE_INSTANCE' permission")
	assert.Contains(t, out.String(), "unknown resource 'Nowhere'")
	assert.NotContains(t, out.String(), "All checks passed")
}

func TestCheckDryRunFailure(t *testing.T) {
	// valid on its own, but the instance names a definition nobody declares
	dangling := filepath.Join(t.TempDir(), "dangling.yml")
	require.NoError(t, os.WriteFile(dangling, []byte(`apiVersion: authz.manetu.io/v1
kind: AuthorizationBundle
spec:
  engine:
    instances:
      - id: pi-1
        definitionId: nothing:1
`), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{dangling})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Applying the merged bundles failed")
}

func TestCheckNoBundles(t *testing.T) {
	err := run(context.Background(), &bytes.Buffer{}, nil)
	assert.ErrorContains(t, err, "no bundles specified")
}
