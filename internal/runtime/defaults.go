package runtime

import v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"

// DefaultRuntimes returns the built-in runtime configurations.
func DefaultRuntimes() []*Config {
	return []*Config{
		{
			ID:           v1.LanguagePython,
			Interpreters: []string{"python3", "python", "python3.12", "python3.11"},
			InstallCommands: [][]string{
				{"pip", "install"},
				{"pip3", "install"},
				{"python", "-m", "pip", "install"},
				{"python3", "-m", "pip", "install"},
			},
		},
		{
			ID:           v1.LanguageNodeJS,
			Interpreters: []string{"node", "nodejs"},
			InstallCommands: [][]string{
				{"npm", "install"},
				{"npm", "ci"},
				{"yarn", "install"},
				{"yarn"},
				{"pnpm", "install"},
			},
		},
	}
}
