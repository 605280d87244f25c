package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), RulesFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("literal and regex rules in order", func(t *testing.T) {
		path := writeRules(t, `
rules:
  - from: /build/workspace
    to: /src
  - regex: '^/home/[^/]+/'
    replace: './'
`)
		rule, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/src/main.c", rule.Apply("/build/workspace/main.c"))
		assert.Equal(t, "./proj/a.c", rule.Apply("/home/builder/proj/a.c"))
		assert.Equal(t, "/usr/x.c", rule.Apply("/usr/x.c"))
	})

	t.Run("rejects mixed rule", func(t *testing.T) {
		path := writeRules(t, `
rules:
  - from: /a
    regex: '^/b'
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mixes")
	})

	t.Run("rejects empty rules file", func(t *testing.T) {
		path := writeRules(t, "rules: []\n")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		path := writeRules(t, `
rules:
  - frmo: /typo
    to: /src
`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestDefaultPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/etc/sympatch")
		assert.Equal(t, filepath.Join("/etc/sympatch", RulesFileName), DefaultPath())
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, DefaultDir, RulesFileName), DefaultPath())
	})
}

func TestLoadDefault(t *testing.T) {
	t.Run("missing default file is not an error", func(t *testing.T) {
		t.Setenv(EnvConfigDir, t.TempDir())

		rule, err := LoadDefault()
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("loads default file when present", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(EnvConfigDir, dir)
		content := "rules:\n  - from: /b\n    to: /x\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, RulesFileName), []byte(content), 0o644))

		rule, err := LoadDefault()
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, "/x/f.c", rule.Apply("/b/f.c"))
	})
}
