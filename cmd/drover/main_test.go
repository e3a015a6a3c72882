package main

import (
	"testing"

	"github.com/droverhq/drover/internal/llm/openai"
)

func newBaseClient(t *testing.T) *openai.Client {
	t.Helper()
	client, err := openai.NewClient(&openai.Config{APIKey: "test-key", Model: "base-model"})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestAgentProvider_EmptyModelUsesBase(t *testing.T) {
	base := newBaseClient(t)
	provider, model, err := agentProvider(base, "")
	if err != nil {
		t.Fatal(err)
	}
	if provider != base {
		t.Error("empty model must reuse the shared base client")
	}
	if model != "base-model" {
		t.Errorf("expected base model, got %q", model)
	}
}

func TestAgentProvider_SameModelUsesBase(t *testing.T) {
	base := newBaseClient(t)
	provider, _, err := agentProvider(base, "base-model")
	if err != nil {
		t.Fatal(err)
	}
	if provider != base {
		t.Error("matching model must reuse the shared base client")
	}
}

func TestAgentProvider_OverrideClonesClient(t *testing.T) {
	base := newBaseClient(t)
	provider, model, err := agentProvider(base, "other-model")
	if err != nil {
		t.Fatal(err)
	}
	if provider == base {
		t.Error("model override must produce a dedicated client")
	}
	if model != "other-model" {
		t.Errorf("expected override model, got %q", model)
	}
	if base.GetConfig().Model != "base-model" {
		t.Error("override must not mutate the base client's config")
	}
}
