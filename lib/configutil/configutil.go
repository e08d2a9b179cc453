package configutil

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// localName turns "dir/config.json5" into "dir/config.local.json5".
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// readJson5 decodes the file into out, found is false if it does not exist.
func readJson5(path string, out any) (found bool, err error) {
	contents, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return true, nil
	}
	err = json5.Unmarshal(contents, out)
	if err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig reads a json5 configuration file and merges a sibling
// `<name>.local.<ext>` over it when present, local values win. Returns
// os.ErrNotExist when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found, err := readJson5(name, &out)
	if err != nil {
		return out, err
	}

	var override T
	localPath := localName(name)
	foundLocal, err := readJson5(localPath, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localPath)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively is ReadConfig but it walks up from the working directory
// to the filesystem root until it finds the file.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}
	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return zero, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return zero, os.ErrNotExist
		}
		current = parent
	}
}

// Load reads the named config file if one can be found, then applies
// environment overrides (a .env file in the working directory is loaded
// first). Fields opt in to overrides with `env` struct tags, names are
// prefixed with envPrefix.
func Load[T any](name, envPrefix string) (T, error) {
	out, err := ReadRecursively[T](name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return out, err
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults and environment", "name", name)
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("load .env file: %w", err)
	}

	err = env.ParseWithOptions(&out, env.Options{Prefix: envPrefix})
	if err != nil {
		return out, fmt.Errorf("parse environment: %w", err)
	}
	return out, nil
}
