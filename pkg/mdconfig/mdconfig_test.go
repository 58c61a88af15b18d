package mdconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "VERBOSE"
	require.Error(t, cfg.Validate())
}

func TestResolveDictPathAbsolute(t *testing.T) {
	cfg := Default()
	abs := filepath.Join(t.TempDir(), "x.mdx")
	require.Equal(t, abs, cfg.ResolveDictPath(abs))
}

func TestResolveDictPathPrefersExistingRelative(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(orig) })

	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	require.NoError(t, os.Mkdir("dict", 0o755))
	mdxPath := filepath.Join("dict", "sample.mdx")
	require.NoError(t, os.WriteFile(mdxPath, []byte("x"), 0o644))

	cfg := Default()
	got := cfg.ResolveDictPath("sample.mdx")
	require.Equal(t, mdxPath, got)
}

func TestAutoDiscoverDictionaries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.mdx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "french_slang.mdx"), []byte("x"), 0o644))

	cfg := Default()
	cfg.DictDirectory = dir
	require.NoError(t, cfg.AutoDiscoverDictionaries())

	require.Len(t, cfg.Dictionaries, 2)
	require.Equal(t, "", cfg.Dictionaries["default"].Route)
	require.Equal(t, "french_slang", cfg.Dictionaries["french_slang"].Route)
	require.Equal(t, "French Slang", cfg.Dictionaries["french_slang"].Name)
}

func TestAutoDiscoverSingleDictionaryBecomesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collins.mdx"), []byte("x"), 0o644))

	cfg := Default()
	cfg.DictDirectory = dir
	require.NoError(t, cfg.AutoDiscoverDictionaries())

	require.Len(t, cfg.Dictionaries, 1)
	require.Equal(t, "", cfg.Dictionaries["collins"].Route)
}

func TestAutoDiscoverSkipsWhenAlreadyConfigured(t *testing.T) {
	cfg := Default()
	cfg.Dictionaries["x"] = DictConfig{Name: "X", Path: "x.mdx"}
	require.NoError(t, cfg.AutoDiscoverDictionaries())
	require.Len(t, cfg.Dictionaries, 1)
}

func TestFromFileMissingReturnsDefault(t *testing.T) {
	cfg, err := FromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, Default().Port, cfg.Port)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MDX_PORT", "9001")
	t.Setenv("MDX_DEBUG", "true")

	cfg := Default()
	require.NoError(t, cfg.applyEnvOverrides())
	require.Equal(t, 9001, cfg.Port)
	require.True(t, cfg.Debug)
}
