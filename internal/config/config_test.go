package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if got := GetString(KeyDBPath); got != "dealflow.db" {
		t.Errorf("GetString(%q) = %q, want dealflow.db", KeyDBPath, got)
	}
	if got := GetBool(KeyJSON); got != false {
		t.Errorf("GetBool(%q) = %v, want false", KeyJSON, got)
	}
	if got := GetDuration(KeySweepInterval); got != 15*time.Minute {
		t.Errorf("GetDuration(%q) = %v, want 15m", KeySweepInterval, got)
	}
	if got := GetString(KeyAIModel); got != "" {
		t.Errorf("GetString(%q) = %q, want empty", KeyAIModel, got)
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar string
		key    string
		value  string
		check  func(t *testing.T)
	}{
		{"DFL_DB_PATH", KeyDBPath, "/tmp/other.db", func(t *testing.T) {
			if got := GetString(KeyDBPath); got != "/tmp/other.db" {
				t.Errorf("GetString = %q", got)
			}
		}},
		{"DFL_JSON", KeyJSON, "true", func(t *testing.T) {
			if !GetBool(KeyJSON) {
				t.Error("GetBool = false")
			}
		}},
		{"DFL_SWEEP_INTERVAL", KeySweepInterval, "5m", func(t *testing.T) {
			if got := GetDuration(KeySweepInterval); got != 5*time.Minute {
				t.Errorf("GetDuration = %v", got)
			}
		}},
		{"DFL_NOTIFY_WEBHOOK_URL", KeyWebhookURL, "https://hooks.example.com/dfl", func(t *testing.T) {
			if got := GetString(KeyWebhookURL); got != "https://hooks.example.com/dfl" {
				t.Errorf("GetString = %q", got)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			tt.check(t)
		})
	}

	// Restore a clean instance for other tests.
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `actor: configuser
db:
  path: /tmp/from-file.db
sweep:
  interval: 2m
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Chdir(wd)
		_ = Initialize()
	}()

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString(KeyActor); got != "configuser" {
		t.Errorf("GetString(%q) = %q, want configuser", KeyActor, got)
	}
	if got := GetString(KeyDBPath); got != "/tmp/from-file.db" {
		t.Errorf("GetString(%q) = %q", KeyDBPath, got)
	}
	if got := GetDuration(KeySweepInterval); got != 2*time.Minute {
		t.Errorf("GetDuration(%q) = %v", KeySweepInterval, got)
	}
}

func TestNilSafety(t *testing.T) {
	saved := v
	v = nil
	defer func() { v = saved }()

	if got := GetString(KeyActor); got != "" {
		t.Errorf("GetString with nil viper = %q, want \"\"", got)
	}
	if got := GetBool(KeyJSON); got != false {
		t.Errorf("GetBool with nil viper = %v, want false", got)
	}
	if got := GetDuration(KeySweepInterval); got != 0 {
		t.Errorf("GetDuration with nil viper = %v, want 0", got)
	}
	if got := GetStringSlice(KeySweepManagers); got != nil {
		t.Errorf("GetStringSlice with nil viper = %v, want nil", got)
	}
}
