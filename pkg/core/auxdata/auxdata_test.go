//
//  Copyright © Manetu Inc. All rights reserved.
//

package auxdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadAuxData_EmptyPath(t *testing.T) {
	result, err := LoadAuxData("")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestLoadAuxData_NonexistentDir(t *testing.T) {
	_, err := LoadAuxData("/nonexistent/path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read auxdata directory")
}

func TestLoadAuxData_EmptyDir(t *testing.T) {
	result, err := LoadAuxData(t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestLoadAuxData_WithFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "tenant", "acme")
	write(t, dir, "routes.yaml", "tasks: Task\nprocess-definitions: ProcessDefinition\n")
	write(t, dir, "admins.json", `["root", "ops"]`)

	result, err := LoadAuxData(dir)
	require.NoError(t, err)
	assert.Len(t, result, 3)
	assert.Equal(t, "acme", result["tenant"])
	assert.Equal(t, map[string]interface{}{"tasks": "Task", "process-definitions": "ProcessDefinition"}, result["routes"])
	assert.Equal(t, []interface{}{"root", "ops"}, result["admins"])
}

func TestLoadAuxData_DecodeError(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "broken.yml", "a: [")

	_, err := LoadAuxData(dir)
	assert.ErrorContains(t, err, "failed to decode auxdata file broken.yml")
}

func TestLoadAuxData_SkipsHiddenFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "visible", "data")
	write(t, dir, ".hidden", "secret")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	result, err := LoadAuxData(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"visible": "data"}, result)
}

func TestMergeAuxData(t *testing.T) {
	input := map[string]interface{}{"request": "data"}
	assert.NotContains(t, MergeAuxData(input, nil), Key)
	assert.NotContains(t, MergeAuxData(input, map[string]interface{}{}), Key)

	aux := map[string]interface{}{"tenant": "acme"}
	result := MergeAuxData(input, aux)
	assert.Equal(t, "data", result["request"])
	assert.Equal(t, aux, result[Key])

	assert.Equal(t, map[string]interface{}{Key: aux}, MergeAuxData(nil, aux))
}
