package internal

import (
	"strings"
	"testing"
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
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
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
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestNotionConfig_RequiresTokenAndDatabase(t *testing.T) {
	cfg := NotionConfig{BaseURL: "https://api.notion.com", Rate: 3, Burst: 3}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing token and database_id should fail")
	}

	cfg.Token = "secret"
	cfg.DatabaseID = "db-1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete config should pass: %v", err)
	}
}

func TestNotionConfig_RateBounds(t *testing.T) {
	cfg := NotionConfig{Token: "secret", DatabaseID: "db-1", Rate: 0.01, Burst: 3}
	if err := cfg.Validate(); err == nil {
		t.Error("rate below minimum should fail")
	}

	cfg.Rate = 3
	cfg.Burst = 0.5
	if err := cfg.Validate(); err == nil {
		t.Error("burst below minimum should fail")
	}
}

func TestSyncConfig_StrategyValues(t *testing.T) {
	for _, strategy := range []string{"keep-local", "keep-remote", "cancel"} {
		cfg := SyncConfig{ConflictStrategy: strategy, DebounceSeconds: 2}
		if err := cfg.Validate(); err != nil {
			t.Errorf("strategy %q should pass: %v", strategy, err)
		}
	}

	cfg := SyncConfig{ConflictStrategy: "merge", DebounceSeconds: 2}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown strategy should fail")
	}
}

func TestSyncConfig_Debounce(t *testing.T) {
	cfg := SyncConfig{ConflictStrategy: "cancel", DebounceSeconds: 5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Debounce().Seconds(); got != 5 {
		t.Errorf("debounce = %v, want 5s", cfg.Debounce())
	}
}

func TestDefaultConfig_NeedsNotionCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without notion credentials should fail validation")
	}

	cfg.Notion.Token = "secret"
	cfg.Notion.DatabaseID = "db-1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with credentials should pass: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
