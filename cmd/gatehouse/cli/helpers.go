package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/hiredeck/gatehouse/internal/config"
	"github.com/hiredeck/gatehouse/internal/store"
)

// loadConfig builds the effective configuration: defaults, then the YAML
// file (if one was found), then GATEHOUSE_* env overrides for the settings
// that commonly differ per deployment.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := viper.GetString("store.driver"); v != "" {
		cfg.Store.Driver = v
	}
	if v := viper.GetString("store.dsn"); v != "" {
		cfg.Store.DSN = v
	}
	if v := viper.GetString("auth.jwt_secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetInt("server.port"); v != 0 {
		cfg.Server.Port = v
	}

	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		home, _ := os.UserHomeDir()
		cfg.Store.DSN = home + "/.gatehouse"
	}
	return cfg, nil
}

// openStore opens the configured backend for CLI commands.
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Driver, cfg.Store.DSN)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

// yesNo formats a bool for table output.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// truncate shortens a string for fixed-width table columns.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...", s[:max-3])
}
