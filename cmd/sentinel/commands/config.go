package commands

import (
	"database/sql"

	"github.com/spf13/viper"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/db"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// ConfigPath is set by the root --config flag.
var ConfigPath string

// loadConfig reads --config if given, otherwise the standard cascade.
func loadConfig() (*am.Config, error) {
	var (
		cfg *am.Config
		err error
	)
	if ConfigPath != "" {
		cfg, err = am.LoadFromFile(ConfigPath)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// configViper returns the Viper instance loadConfig reads from, with the
// per-key sources known for it.
func configViper() (*viper.Viper, map[string]am.SourceInfo, error) {
	if ConfigPath == "" {
		v := am.GetViper()
		if _, err := am.Load(); err != nil {
			return nil, nil, err
		}
		return v, am.ConfigSources, nil
	}

	v, err := am.ViperFromFile(ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	sources := make(map[string]am.SourceInfo)
	for _, key := range v.AllKeys() {
		if v.InConfig(key) {
			sources[key] = am.SourceInfo{Source: am.SourceFile, Path: ConfigPath}
		}
	}
	return v, sources, nil
}

// openDatabase opens and migrates the job database named in cfg.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	if cfg.Database.Path == "" {
		return nil, errors.WithHint(errors.New("no database configured"), "set database.path in sentinel.toml")
	}
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}
	return database, nil
}
