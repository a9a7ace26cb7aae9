package sandbox

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
)

// ExtractArchive unpacks an uploaded archive into a fresh working
// directory for the bot and returns that directory. Any existing
// directory is removed first, so repeated extractions never leave
// residue from an earlier archive. Zip and gzipped tar are supported,
// detected by content.
//
// Archives that wrap everything in a single top-level directory are
// flattened: the wrapper's contents are hoisted into the bot directory.
func (m *Manager) ExtractArchive(botName, archivePath string) (string, error) {
	dir, err := m.ResetBotDir(botName)
	if err != nil {
		return "", err
	}

	kind, err := detectArchiveKind(archivePath)
	if err != nil {
		return "", apperrors.BadRequest(err.Error())
	}

	switch kind {
	case "zip":
		err = extractZip(archivePath, dir)
	case "tar.gz":
		err = extractTarGz(archivePath, dir)
	}
	if err != nil {
		return "", apperrors.DeploymentFailed("extract", err)
	}

	if err := hoistSingleTopDir(dir); err != nil {
		return "", apperrors.DeploymentFailed("extract", err)
	}

	m.logger.Info("archive extracted",
		zap.String("bot", botName),
		zap.String("format", kind),
		zap.String("dir", dir))
	return dir, nil
}

// detectArchiveKind sniffs the file's magic bytes.
func detectArchiveKind(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("unreadable archive: %w", err)
	}

	switch {
	case magic[0] == 'P' && magic[1] == 'K':
		return "zip", nil
	case magic[0] == 0x1f && magic[1] == 0x8b:
		return "tar.gz", nil
	default:
		return "", fmt.Errorf("unsupported archive format (want zip or tar.gz)")
	}
}

func extractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("reading %s: %w", file.Name, err)
		}
		if err := writeEntry(target, src, file.Mode()); err != nil {
			src.Close()
			return err
		}
		src.Close()
	}
	return nil
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeEntry(target, tr, header.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks and specials are dropped: nothing in a bot
			// workspace should point outside it.
		}
	}
}

func writeEntry(target string, src io.Reader, mode os.FileMode) error {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return dst.Close()
}

// safeJoin rejects archive entries whose names climb out of destDir.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.Clean(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry escapes extraction directory: %s", name)
	}
	return target, nil
}

// hoistSingleTopDir flattens an archive that contains exactly one
// top-level directory by moving that directory's contents up one level.
func hoistSingleTopDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	wrapper := filepath.Join(dir, entries[0].Name())
	inner, err := os.ReadDir(wrapper)
	if err != nil {
		return err
	}
	for _, entry := range inner {
		from := filepath.Join(wrapper, entry.Name())
		to := filepath.Join(dir, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("hoisting %s: %w", entry.Name(), err)
		}
	}
	return os.Remove(wrapper)
}
