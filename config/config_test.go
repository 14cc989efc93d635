package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("unexpected default provider: %q", cfg.AI.Provider)
	}
	if cfg.AI.TokenLimit != 128000 || cfg.AI.ResponseTokens != 1024 {
		t.Fatalf("unexpected token defaults: %+v", cfg.AI)
	}
	if cfg.Server.Port != "3000" {
		t.Fatalf("unexpected default port: %q", cfg.Server.Port)
	}
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Fatalf("unexpected default ollama host: %q", cfg.Ollama.Host)
	}
	if cfg.RAG.MaxSources != 5 {
		t.Fatalf("unexpected default max sources: %d", cfg.RAG.MaxSources)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("TOKEN_LIMIT", "4096")
	t.Setenv("USE_RESTRICTIONS", "true")
	t.Setenv("RESTRICT_TO_EXISTING_TAGS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AI.Provider != ProviderOllama {
		t.Fatalf("unexpected provider: %q", cfg.AI.Provider)
	}
	if cfg.AI.TokenLimit != 4096 {
		t.Fatalf("unexpected token limit: %d", cfg.AI.TokenLimit)
	}
	if !cfg.AI.UseRestrictions || !cfg.AI.RestrictTags || cfg.AI.RestrictCorrespondents {
		t.Fatalf("unexpected restriction flags: %+v", cfg.AI)
	}
}

func TestLoadParsesCustomFields(t *testing.T) {
	t.Setenv("CUSTOM_FIELDS", `[{"name":"Invoice Number","data_type":"string"},{"name":"Net Amount","data_type":"monetary"}]`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.AI.CustomFields) != 2 {
		t.Fatalf("expected 2 custom fields, got %d", len(cfg.AI.CustomFields))
	}
	if cfg.AI.CustomFields[0].Name != "Invoice Number" || cfg.AI.CustomFields[1].DataType != "monetary" {
		t.Fatalf("unexpected custom fields: %+v", cfg.AI.CustomFields)
	}
}

func TestLoadRejectsBadCustomFields(t *testing.T) {
	t.Setenv("CUSTOM_FIELDS", `not json`)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed CUSTOM_FIELDS")
	}
}
