package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadSecrets reads the engine secrets file (KEY=value lines). A missing file
// yields an empty map so repositories configured purely through the process
// environment keep working.
func (c *Config) LoadSecrets() (map[string]string, error) {
	path := strings.TrimSpace(c.Engine.SecretsFile)
	if path == "" {
		return map[string]string{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("stat secrets file: %w", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file %q: %w", path, err)
	}
	return values, nil
}

// EngineEnvironment returns the environment for engine invocations: the
// process environment, then secrets, then the repository locator.
func (c *Config) EngineEnvironment(secrets map[string]string) []string {
	env := os.Environ()
	for key, value := range secrets {
		env = append(env, key+"="+value)
	}
	if c.Engine.Repository != "" {
		env = append(env, "RESTIC_REPOSITORY="+c.Engine.Repository)
	}
	return env
}
