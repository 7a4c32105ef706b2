package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/herald/internal/apperr"
	pkgconfig "github.com/starford/herald/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestRemoteConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig().Remote
	if err := cfg.Validate(); !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("missing owner: err = %v, want ErrConfig", err)
	}

	cfg.Owner, cfg.Repo = "o", "r"
	if err := cfg.Validate(); !errors.Is(err, apperr.ErrConfig) || !strings.Contains(err.Error(), "token") {
		t.Fatalf("missing token: err = %v", err)
	}

	cfg.Token = "t"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid remote: %v", err)
	}
}

func TestRemoteConfig_ClientRejectsHTTP(t *testing.T) {
	cfg := NewDefaultConfig().Remote
	cfg.Owner, cfg.Repo, cfg.Token = "o", "r", "t"
	cfg.BaseURL = "http://example.com"
	if _, err := cfg.Client(nil); !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestWatchConfig_RenameWindowBounds(t *testing.T) {
	cfg := WatchConfig{RenameWindow: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("a one minute rename window should fail validation")
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("HERALD_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "remote:\n  owner: o\n  repo: r\n  token: ${HERALD_TEST_TOKEN}\n  timeout: 5s\nwatch:\n  rename_window: 300ms\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.Token != "from-env" {
		t.Errorf("token = %q", cfg.Remote.Token)
	}
	if cfg.Remote.Timeout != 5*time.Second || cfg.Watch.RenameWindow != 300*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Remote.Timeout, cfg.Watch.RenameWindow)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Error("defaults should survive a partial file")
	}
}
