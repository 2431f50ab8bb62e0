package genai

import "testing"

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}

func TestNewClientWithOptions(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != "gpt-4o" {
		t.Errorf("model = %s, want gpt-4o", client.model)
	}
}

func TestNewClientFallsBackToEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model == "" {
		t.Error("expected a default model to be set")
	}
}
