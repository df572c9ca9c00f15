package am

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teranos/sentinel/errors"
)

// Output formats for Render
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Settings returns v's effective settings with credentials masked.
func Settings(v *viper.Viper) map[string]interface{} {
	settings := v.AllSettings()
	if backend, ok := settings["backend"].(map[string]interface{}); ok {
		if token, ok := backend["token"].(string); ok && token != "" {
			backend["token"] = "********"
		}
	}
	return settings
}

// Render encodes settings as toml, json or yaml.
func Render(settings map[string]interface{}, format string) ([]byte, error) {
	switch format {
	case "", FormatTOML:
		data, err := toml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config as toml")
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config as json")
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return nil, errors.Wrap(err, "failed to marshal config as yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to marshal config as yaml")
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.WithHintf(errors.Newf("unknown format %q", format),
			"use one of %s, %s, %s", FormatTOML, FormatJSON, FormatYAML)
	}
}

// WriteDefault writes the built-in defaults as TOML to path, rotating any
// existing file into .back1..3 first.
func WriteDefault(path string) error {
	v := viper.New()
	SetDefaults(v)

	data, err := toml.Marshal(v.AllSettings())
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	header := []byte("# sentinel configuration\n# backend.token is read from SENTINEL_BACKEND_TOKEN or IBM_QUANTUM_API_TOKEN\n\n")
	if err := os.WriteFile(path, append(header, data...), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}

	for _, step := range [][2]string{{back2, back3}, {back1, back2}} {
		if _, err := os.Stat(step[0]); err == nil {
			if err := os.Rename(step[0], step[1]); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", filepath.Base(step[0]))
			}
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
