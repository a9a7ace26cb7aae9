package sandbox

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// languageByExtension maps file extensions to editor language hints.
// Unknown extensions fall back to plaintext.
var languageByExtension = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".json": "json",
	".yml":  "yaml",
	".yaml": "yaml",
	".toml": "toml",
	".md":   "markdown",
	".sh":   "shell",
	".env":  "properties",
	".txt":  "plaintext",
	".html": "html",
	".css":  "css",
	".sql":  "sql",
	".go":   "go",
}

// FileContent is the result of a guarded file read.
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Size     int64  `json:"size"`
}

// ListFiles returns the bot directory's recursive tree. Directories sort
// before files, both alphabetically. Fails with NotFound when the bot has
// no working directory yet.
func (m *Manager) ListFiles(botName string) (*v1.FileNode, error) {
	dir := m.BotDir(botName)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.NotFound("bot directory", botName)
	}

	root := &v1.FileNode{
		Name: SanitizeName(botName),
		Path: ".",
		Type: "directory",
	}
	if err := m.fillTree(dir, ".", root); err != nil {
		return nil, apperrors.InternalError("listing bot files", err)
	}
	return root, nil
}

func (m *Manager) fillTree(absDir, relDir string, node *v1.FileNode) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		relPath := filepath.Join(relDir, entry.Name())
		child := &v1.FileNode{
			Name: entry.Name(),
			Path: filepath.ToSlash(relPath),
		}
		if entry.IsDir() {
			child.Type = "directory"
			if err := m.fillTree(filepath.Join(absDir, entry.Name()), relPath, child); err != nil {
				return err
			}
		} else {
			child.Type = "file"
			if info, err := entry.Info(); err == nil {
				child.Size = info.Size()
			}
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

// ReadFile reads a file inside the bot's directory. Paths resolving
// outside the directory fail with InvalidPath; files above the size
// ceiling fail with TooLarge.
func (m *Manager) ReadFile(botName, relativePath string) (*FileContent, error) {
	abs, err := m.resolveSafePath(botName, relativePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperrors.NotFound("file", relativePath)
	}
	if info.IsDir() {
		return nil, apperrors.BadRequest("path is a directory: " + relativePath)
	}
	if info.Size() > m.maxFileBytes {
		return nil, apperrors.TooLarge(relativePath, info.Size(), m.maxFileBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, apperrors.InternalError("reading file", err)
	}
	return &FileContent{
		Path:     filepath.ToSlash(filepath.Clean(relativePath)),
		Content:  string(data),
		Language: languageFor(abs),
		Size:     info.Size(),
	}, nil
}

// WriteFile writes content to a file inside the bot's directory,
// creating intermediate directories as needed. Existing files are
// overwritten wholesale.
func (m *Manager) WriteFile(botName, relativePath, content string) error {
	abs, err := m.resolveSafePath(botName, relativePath)
	if err != nil {
		return err
	}
	if int64(len(content)) > m.maxFileBytes {
		return apperrors.TooLarge(relativePath, int64(len(content)), m.maxFileBytes)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperrors.InternalError("creating parent directories", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return apperrors.InternalError("writing file", err)
	}
	return nil
}

func languageFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" && strings.HasPrefix(filepath.Base(path), ".env") {
		ext = ".env"
	}
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "plaintext"
}
