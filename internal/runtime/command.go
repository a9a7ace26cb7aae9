package runtime

import (
	"fmt"
	"strings"
)

// SplitCommand tokenizes a run or build command line. Single and double
// quotes group words; a backslash escapes the next character outside
// single quotes. Shell operators are not interpreted, the result is a
// plain argv.
func SplitCommand(command string) ([]string, error) {
	var (
		argv    []string
		current strings.Builder
		quote   rune
		escaped bool
		inWord  bool
	)

	for _, r := range command {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				argv = append(argv, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if escaped || quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %s", command)
	}
	if inWord {
		argv = append(argv, current.String())
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}
