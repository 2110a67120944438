package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AUTO_RETURN_AFTER", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.AutoReturnAfter != 2*time.Hour {
		t.Fatalf("expected 2h, got %v", cfg.AutoReturnAfter)
	}
	if cfg.AutoReturnSchedule != "@every 5m" {
		t.Fatalf("unexpected schedule %q", cfg.AutoReturnSchedule)
	}
	if cfg.AutoReturnActor != "system" {
		t.Fatalf("unexpected actor %q", cfg.AutoReturnActor)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.RequestTimeout)
	}
}

func TestParseRoutingRules(t *testing.T) {
	data := []byte(`
routing_rules:
  - service_type: badge_access
    is_active: true
    auto_assign: true
    assigned_users: [A1, A2]
  - service_type: firearm_permit
    is_active: false
    assigned_users: [A3]
    strategy: least_loaded
`)
	rules, err := ParseRoutingRules(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if !rules[0].AutoAssign || len(rules[0].AssignedUsers) != 2 {
		t.Fatalf("unexpected first rule: %+v", rules[0])
	}
	if rules[1].IsActive || rules[1].Strategy != "least_loaded" {
		t.Fatalf("unexpected second rule: %+v", rules[1])
	}
}

func TestParseRoutingRulesRequiresServiceType(t *testing.T) {
	if _, err := ParseRoutingRules([]byte("routing_rules:\n  - is_active: true\n")); err == nil {
		t.Fatal("expected error for rule without service_type")
	}
}

func TestLoadRoutingRulesFile(t *testing.T) {
	rules, err := LoadRoutingRules("")
	if err != nil || rules != nil {
		t.Fatalf("expected no rules for empty path, got %v %v", rules, err)
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("routing_rules:\n  - service_type: escort\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	rules, err = LoadRoutingRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 1 || rules[0].ServiceType != "escort" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}
