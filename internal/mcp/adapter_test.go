package mcp

import (
	"encoding/json"
	"testing"
)

func TestToolAdapter_NamingConvention(t *testing.T) {
	a := NewToolAdapter("files", ToolInfo{Name: "read_file", Description: "reads"}, nil)
	if got := a.Name(); got != "mcp_files__read_file" {
		t.Errorf("expected mcp_files__read_file, got %q", got)
	}
	if a.Description() != "reads" {
		t.Errorf("unexpected description %q", a.Description())
	}
}

func TestToolAdapter_SchemaFallback(t *testing.T) {
	a := NewToolAdapter("files", ToolInfo{Name: "x"}, nil)
	schema := a.InputSchema()
	var parsed map[string]any
	if err := json.Unmarshal(schema, &parsed); err != nil {
		t.Fatalf("fallback schema must be valid JSON: %v", err)
	}
	if parsed["type"] != "object" {
		t.Errorf("expected object schema, got %v", parsed["type"])
	}
}

func TestToolAdapter_PassesThroughServerSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	a := NewToolAdapter("files", ToolInfo{Name: "x", InputSchema: schema}, nil)
	if string(a.InputSchema()) != string(schema) {
		t.Error("server-provided schema must pass through unchanged")
	}
}

func TestToolAdapter_BadArgsBecomeToolError(t *testing.T) {
	a := NewToolAdapter("files", ToolInfo{Name: "x"}, nil)
	result, err := a.Execute(t.Context(), json.RawMessage(`{broken`))
	if err != nil {
		t.Fatalf("parse failures must be tool errors, got Go error: %v", err)
	}
	if result.Error == "" {
		t.Error("expected a parse error in the result")
	}
}
