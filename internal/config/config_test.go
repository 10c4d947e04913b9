package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRoundTrips(t *testing.T) {
	cfg := Default("campus")
	if cfg.Workspace.ID != "campus" {
		t.Fatalf("workspace id: %q", cfg.Workspace.ID)
	}
	if cfg.Generator.Provider != "heuristic" {
		t.Fatalf("provider: %q", cfg.Generator.Provider)
	}
	if cfg.Intake.MinChannelBudget != 1 || cfg.Intake.MaxChannelBudget != 50 {
		t.Fatalf("budget bounds: %+v", cfg.Intake)
	}
	if _, ok := cfg.Channels.Core["general"]; !ok {
		t.Fatalf("default core channels missing general: %v", cfg.Channels.Core)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing workspace id": `generator: {provider: heuristic}`,
		"bad provider": `workspace: {id: ws}
generator: {provider: chatbot}
intake: {min_channel_budget: 1, max_channel_budget: 10}`,
		"inverted budget bounds": `workspace: {id: ws}
intake: {min_channel_budget: 10, max_channel_budget: 1}`,
		"webhook without url": `workspace: {id: ws}
intake: {min_channel_budget: 1, max_channel_budget: 10}
webhooks:
  - secret: shh`,
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestFromYAMLParsesWebhooks(t *testing.T) {
	raw := `workspace: {id: ws}
intake: {min_channel_budget: 1, max_channel_budget: 10}
webhooks:
  - url: https://example.test/hook
    secret: shh
    events: [structure.applied]
    timeout_seconds: 3`
	cfg, err := FromYAML([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.test/hook" {
		t.Fatalf("webhooks: %+v", cfg.Webhooks)
	}
	if cfg.Webhooks[0].Events[0] != "structure.applied" || cfg.Webhooks[0].TimeoutSeconds != 3 {
		t.Fatalf("webhook fields: %+v", cfg.Webhooks[0])
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing file, got %v, %v", cfg, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "hive.yml"), []byte(GenerateDefault("campus")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || cfg.Workspace.ID != "campus" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadMissingMentionsImport(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config import") {
		t.Fatalf("expected import hint, got %v", err)
	}
}
