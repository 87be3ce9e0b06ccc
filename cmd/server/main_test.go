package main

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/router-for-me/CopilotAPI/internal/config"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := generateAPIKey()
	if err != nil {
		t.Fatalf("generateAPIKey: %v", err)
	}
	if !regexp.MustCompile(`^capi_[0-9a-f]{64}$`).MatchString(key) {
		t.Fatalf("unexpected key format %q", key)
	}
	other, _ := generateAPIKey()
	if other == key {
		t.Fatal("keys must differ")
	}
}

func TestOverridesApplyOnlySetFlags(t *testing.T) {
	o := &overrides{
		port:        5000,
		rateLimit:   10,
		apiKeys:     " a, ,b ",
		accountType: "Business",
		set:         map[string]bool{"port": true, "api-keys": true, "account-type": true},
	}
	cfg := config.Default()
	cfg.RateLimitSeconds = 3
	o.apply(cfg)

	if cfg.Port != 5000 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.RateLimitSeconds != 3 {
		t.Errorf("unset flag overrode file value: %d", cfg.RateLimitSeconds)
	}
	if !reflect.DeepEqual(cfg.APIKeys, []string{"a", "b"}) {
		t.Errorf("api keys = %v", cfg.APIKeys)
	}
	if cfg.AccountType != config.AccountTypeBusiness {
		t.Errorf("account type = %q", cfg.AccountType)
	}
}
