package sandbox

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// envFileCandidates is the fixed scan order for environment files in a
// bot's directory. The first entry is the primary file: its keys win
// over every other discovered file.
var envFileCandidates = []string{".env", "config.env", ".env.example"}

// DiscoverEnv locates and merges the bot directory's environment files,
// then applies the caller-supplied overrides on top. Precedence, lowest
// to highest: fallback files in reverse scan order, the primary file,
// then overrides. The result is deterministic for the same inputs.
//
// Values support one level of ${VAR}/$VAR substitution resolved against
// keys already present in the merge plus the process environment. The
// expansion pass reads from a snapshot of the pre-expansion map, so a
// chained reference resolves to the referenced key's raw value no matter
// the iteration order.
func (m *Manager) DiscoverEnv(botName string, overrides map[string]string) map[string]string {
	dir := m.BotDir(botName)
	merged := make(map[string]string)

	// Apply fallbacks first so the primary file overwrites them.
	for i := len(envFileCandidates) - 1; i >= 0; i-- {
		path := filepath.Join(dir, envFileCandidates[i])
		vars, err := parseEnvFile(path)
		if err != nil {
			continue
		}
		m.logger.Debug("parsed environment file",
			zap.String("bot", botName),
			zap.String("file", envFileCandidates[i]),
			zap.Int("keys", len(vars)))
		for k, v := range vars {
			merged[k] = v
		}
	}

	for k, v := range overrides {
		merged[k] = v
	}

	raw := make(map[string]string, len(merged))
	for k, v := range merged {
		raw[k] = v
	}
	for k, v := range merged {
		merged[k] = expandOnce(v, raw)
	}
	return merged
}

// parseEnvFile reads one KEY=VALUE file. Comment and blank lines are
// skipped, an "export " prefix is tolerated, and matching surrounding
// quotes are stripped. Values are returned verbatim with no variable
// expansion so references survive until the merge-wide expansion pass.
func parseEnvFile(path string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		if key == "" {
			continue
		}
		vars[key] = parseEnvValue(strings.TrimSpace(line[eq+1:]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

// parseEnvValue strips matching surrounding quotes and, for unquoted
// values, a trailing inline comment.
func parseEnvValue(v string) string {
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			inner := v[1 : len(v)-1]
			if v[0] == '"' {
				inner = unescapeDoubleQuoted(inner)
			}
			return inner
		}
	}

	// An unquoted '#' starts a comment only after whitespace, so
	// fragment-bearing values like URLs stay intact.
	for i := 1; i < len(v); i++ {
		if v[i] == '#' && (v[i-1] == ' ' || v[i-1] == '\t') {
			return strings.TrimSpace(v[:i])
		}
	}
	return v
}

// unescapeDoubleQuoted resolves the common backslash escapes inside a
// double-quoted value. Unknown escapes pass through unchanged.
func unescapeDoubleQuoted(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(s[i])
				b.WriteByte(s[i+1])
			}
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// expandOnce performs a single substitution pass. References to unknown
// variables expand to the empty string, matching shell behavior.
func expandOnce(value string, vars map[string]string) string {
	if !strings.ContainsRune(value, '$') {
		return value
	}
	return os.Expand(value, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}
