// Package config wraps viper for CLI and daemon settings. Precedence:
// environment (DFL_*) over config.yaml over built-in defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys. Environment overrides replace dots and dashes with
// underscores: db.path becomes DFL_DB_PATH.
const (
	KeyDBPath           = "db.path"
	KeyActor            = "actor"
	KeyJSON             = "json"
	KeyAIModel          = "ai.model"
	KeyAIAPIKey         = "ai.api-key"
	KeyWebhookURL       = "notify.webhook-url"
	KeyEscalationPolicy = "escalation.policy-path"
	KeySweepInterval    = "sweep.interval"
	KeySweepManagers    = "sweep.managers"
	KeySweepQuietHours  = "sweep.quiet-hours"
)

var v *viper.Viper

// Initialize builds the viper instance: defaults, optional config.yaml in
// the working directory or ~/.dealflow, and DFL_ environment overrides.
// Safe to call again to pick up environment changes.
func Initialize() error {
	nv := viper.New()

	nv.SetDefault(KeyDBPath, "dealflow.db")
	nv.SetDefault(KeyActor, "")
	nv.SetDefault(KeyJSON, false)
	nv.SetDefault(KeyAIModel, "")
	nv.SetDefault(KeyAIAPIKey, "")
	nv.SetDefault(KeyWebhookURL, "")
	nv.SetDefault(KeyEscalationPolicy, "")
	nv.SetDefault(KeySweepInterval, 15*time.Minute)
	nv.SetDefault(KeySweepManagers, []string{})
	nv.SetDefault(KeySweepQuietHours, map[string]string{})

	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	nv.AddConfigPath(".")
	nv.AddConfigPath("$HOME/.dealflow")

	nv.SetEnvPrefix("DFL")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	if err := nv.ReadInConfig(); err != nil {
		// A missing config file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	v = nv
	return nil
}

// GetString returns the string value for key, or "" when uninitialized.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns the bool value for key, or false when uninitialized.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration returns the duration value for key, or 0 when uninitialized.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns the string-slice value for key.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// GetStringMapString returns the string-map value for key.
func GetStringMapString(key string) map[string]string {
	if v == nil {
		return nil
	}
	return v.GetStringMapString(key)
}

// Set overrides a value on the live instance. Intended for tests and for
// flag binding in the CLI.
func Set(key string, value any) {
	if v == nil {
		_ = Initialize()
	}
	v.Set(key, value)
}
