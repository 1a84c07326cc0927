package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const generatedHeader = `# dozer configuration
#
# Durations are in seconds unless written like "90s" or "5m".
# Every setting can also be given as an environment variable, for example
# DOZER_SERVER__COMMAND or DOZER_JOIN__METHODS="hold,kick".

`

// ExampleCommand is the server command written by Generate.
const ExampleCommand = "java -Xmx1G -Xms1G -jar server.jar --nogui"

// Generate renders the default configuration as TOML.
func Generate() ([]byte, error) {
	tree := Defaults()
	tree["server"].(map[string]any)["command"] = ExampleCommand
	body, err := toml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	return append([]byte(generatedHeader), body...), nil
}

// WriteDefault writes Generate's output to path. An existing file is only
// replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists\nhint: pass --force to overwrite it", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	data, err := Generate()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
