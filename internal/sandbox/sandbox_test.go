package sandbox

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	m, err := NewManager(config.StorageConfig{
		Root:         t.TempDir(),
		MaxFileBytes: 1 << 20,
	}, log)
	require.NoError(t, err)
	return m
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func writeTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err = tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "echo-bot", SanitizeName("echo bot"))
	assert.Equal(t, "my_bot.v2", SanitizeName("my_bot.v2"))
	assert.Equal(t, "etc-passwd", SanitizeName("../etc/passwd"))
	assert.Equal(t, "bot", SanitizeName("///"))
}

func TestExtractArchiveZip(t *testing.T) {
	m := testManager(t)
	archive := writeZip(t, map[string]string{
		"main.py":        "print('hi')",
		"lib/helpers.py": "pass",
	})

	dir, err := m.ExtractArchive("echo-bot", archive)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))
	assert.FileExists(t, filepath.Join(dir, "lib", "helpers.py"))
}

func TestExtractArchiveTarGz(t *testing.T) {
	m := testManager(t)
	archive := writeTarGz(t, map[string]string{"index.js": "console.log('hi')"})

	dir, err := m.ExtractArchive("node-bot", archive)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "index.js"))
}

func TestExtractArchiveHoistsSingleTopDir(t *testing.T) {
	m := testManager(t)
	archive := writeZip(t, map[string]string{
		"my-bot-main/main.py":         "print('hi')",
		"my-bot-main/requirements.txt": "requests",
	})

	dir, err := m.ExtractArchive("wrapped", archive)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "main.py"))
	assert.FileExists(t, filepath.Join(dir, "requirements.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "my-bot-main"))
}

func TestExtractArchiveReplacesPreviousContents(t *testing.T) {
	m := testManager(t)

	first := writeZip(t, map[string]string{"old.py": "old"})
	_, err := m.ExtractArchive("bot", first)
	require.NoError(t, err)

	second := writeZip(t, map[string]string{"new.py": "new"})
	dir, err := m.ExtractArchive("bot", second)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "new.py"))
	assert.NoFileExists(t, filepath.Join(dir, "old.py"))
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	m := testManager(t)
	archive := writeZip(t, map[string]string{"../evil.py": "bad"})

	_, err := m.ExtractArchive("bot", archive)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(m.Root(), "evil.py"))
}

func TestReadWriteFileRoundTrip(t *testing.T) {
	m := testManager(t)
	_, err := m.EnsureBotDir("bot")
	require.NoError(t, err)

	require.NoError(t, m.WriteFile("bot", "src/app.py", "print('x')"))

	fc, err := m.ReadFile("bot", "src/app.py")
	require.NoError(t, err)
	assert.Equal(t, "print('x')", fc.Content)
	assert.Equal(t, "python", fc.Language)
	assert.Equal(t, int64(len("print('x')")), fc.Size)
}

func TestReadFileUnknownExtensionIsPlaintext(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", "data.xyz", "stuff"))

	fc, err := m.ReadFile("bot", "data.xyz")
	require.NoError(t, err)
	assert.Equal(t, "plaintext", fc.Language)
}

func TestPathEscapeRejected(t *testing.T) {
	m := testManager(t)
	_, err := m.EnsureBotDir("bot")
	require.NoError(t, err)

	_, err = m.ReadFile("bot", "../other-bot/secret.txt")
	assert.True(t, apperrors.IsInvalidPath(err))

	err = m.WriteFile("bot", "../../escape.txt", "nope")
	assert.True(t, apperrors.IsInvalidPath(err))
}

func TestReadFileTooLarge(t *testing.T) {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	m, err := NewManager(config.StorageConfig{Root: t.TempDir(), MaxFileBytes: 8}, log)
	require.NoError(t, err)

	require.Error(t, m.WriteFile("bot", "big.txt", "way more than eight bytes"))

	dir, err := m.EnsureBotDir("bot")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("way more than eight bytes"), 0o644))

	_, err = m.ReadFile("bot", "big.txt")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeTooLarge, appErr.Code)
}

func TestListFiles(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", "zebra.txt", "z"))
	require.NoError(t, m.WriteFile("bot", "apple.txt", "a"))
	require.NoError(t, m.WriteFile("bot", "src/main.py", "pass"))

	tree, err := m.ListFiles("bot")
	require.NoError(t, err)
	require.Len(t, tree.Children, 3)

	// Directories first, then files alphabetically.
	assert.Equal(t, "src", tree.Children[0].Name)
	assert.Equal(t, "directory", tree.Children[0].Type)
	assert.Equal(t, "apple.txt", tree.Children[1].Name)
	assert.Equal(t, "zebra.txt", tree.Children[2].Name)

	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "src/main.py", tree.Children[0].Children[0].Path)
}

func TestListFilesMissingBot(t *testing.T) {
	m := testManager(t)
	_, err := m.ListFiles("ghost")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteAllBestEffort(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", "a.txt", "x"))

	m.DeleteAll("bot")
	assert.NoDirExists(t, m.BotDir("bot"))

	// Deleting a missing directory is not an error.
	m.DeleteAll("bot")
}

func TestDiscoverEnvPrecedence(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", ".env", "KEY=primary\nONLY_PRIMARY=yes\n"))
	require.NoError(t, m.WriteFile("bot", "config.env", "KEY=fallback\nONLY_FALLBACK=yes\n"))

	env := m.DiscoverEnv("bot", map[string]string{"KEY": "override"})
	assert.Equal(t, "override", env["KEY"])
	assert.Equal(t, "yes", env["ONLY_PRIMARY"])
	assert.Equal(t, "yes", env["ONLY_FALLBACK"])
}

func TestDiscoverEnvPrimaryWinsOverFallback(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", ".env", "KEY=primary\n"))
	require.NoError(t, m.WriteFile("bot", "config.env", "KEY=fallback\n"))

	env := m.DiscoverEnv("bot", nil)
	assert.Equal(t, "primary", env["KEY"])
}

func TestDiscoverEnvParsing(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", ".env",
		"# comment line\n\nQUOTED=\"hello world\"\nSINGLE='single'\nBASE=abc\nDERIVED=${BASE}/suffix\n"))

	env := m.DiscoverEnv("bot", nil)
	assert.Equal(t, "hello world", env["QUOTED"])
	assert.Equal(t, "single", env["SINGLE"])
	assert.Equal(t, "abc/suffix", env["DERIVED"])
	_, hasComment := env["#"]
	assert.False(t, hasComment)
}

func TestDiscoverEnvProcessEnvExpansion(t *testing.T) {
	m := testManager(t)
	t.Setenv("HOSTELITE_TEST_HOME", "/srv/bots")
	require.NoError(t, m.WriteFile("bot", ".env", "DATA_DIR=$HOSTELITE_TEST_HOME/data\n"))

	env := m.DiscoverEnv("bot", nil)
	assert.Equal(t, "/srv/bots/data", env["DATA_DIR"])
}

func TestDiscoverEnvChainedReferencesDeterministic(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", ".env", "A='$B'\nB='$C'\nC=x\n"))

	// A single expansion pass reads raw values, so a chain resolves
	// exactly one hop regardless of map iteration order.
	for i := 0; i < 50; i++ {
		env := m.DiscoverEnv("bot", nil)
		assert.Equal(t, "$C", env["A"])
		assert.Equal(t, "x", env["B"])
		assert.Equal(t, "x", env["C"])
	}
}

func TestDiscoverEnvRawParsing(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.WriteFile("bot", ".env",
		"export EXPORTED=1\nURL=https://example.com/page#anchor\nCOMMENTED=value # trailing note\nESCAPED=\"line1\\nline2\"\n"))

	env := m.DiscoverEnv("bot", nil)
	assert.Equal(t, "1", env["EXPORTED"])
	assert.Equal(t, "https://example.com/page#anchor", env["URL"])
	assert.Equal(t, "value", env["COMMENTED"])
	assert.Equal(t, "line1\nline2", env["ESCAPED"])
}

func TestDiscoverEnvNoFiles(t *testing.T) {
	m := testManager(t)
	_, err := m.EnsureBotDir("bot")
	require.NoError(t, err)

	env := m.DiscoverEnv("bot", map[string]string{"A": "1"})
	assert.Equal(t, map[string]string{"A": "1"}, env)
}
