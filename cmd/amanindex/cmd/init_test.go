package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/config"
)

func TestInit_WritesLoadableProjectConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".gitignore"), "bin/")

	// When
	out, _, err := run(t, dir, "init")

	// Then: the template is written and parses as a valid config
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	assert.Contains(t, out, "Added .amanindex/ to .gitignore")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Scopes)
	assert.Equal(t, "code", cfg.Scopes[0].Name)
	assert.Equal(t, config.ProviderBleve, cfg.Provider)

	ignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "bin/\n.amanindex/\n", string(ignore))
}

func TestInit_RefusesToOverwriteWithoutForce(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	_, _, err := run(t, dir, "init")
	require.NoError(t, err)

	_, _, err = run(t, dir, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// When: forcing over an edited file
	path := filepath.Join(dir, config.ProjectConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("provider: sqlite\n"), 0o644))
	out, _, err := run(t, dir, "init", "--force")

	// Then: the edited file is backed up before the template replaces it
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up "+config.ProjectConfigFile)
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "provider: sqlite\n", string(data))
}

func TestInit_User(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	_, _, err := run(t, dir, "init", "--user")

	require.NoError(t, err)
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "status:")
	_, err = os.Stat(filepath.Join(dir, config.ProjectConfigFile))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureGitignored(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		added   bool
		want    string
	}{
		{"missing file left alone", nil, false, ""},
		{"appended", ptr("bin/\n"), true, "bin/\n.amanindex/\n"},
		{"newline added", ptr("bin/"), true, "bin/\n.amanindex/\n"},
		{"already present", ptr(".amanindex/\n"), false, ".amanindex/\n"},
		{"present without slash", ptr("/.amanindex\n"), false, "/.amanindex\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".gitignore")
			if tt.content != nil {
				writeFile(t, path, *tt.content)
			}

			added, err := ensureGitignored(path, dataDirIgnoreEntry)

			require.NoError(t, err)
			assert.Equal(t, tt.added, added)
			if tt.content != nil {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(data))
			}
		})
	}
}

func ptr(s string) *string { return &s }
