package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Fleet Status</title><style>body{color:red}</style></head>
<body>
<nav>Home | About</nav>
<script>alert("hi")</script>
<h1>Weekly Report</h1>
<p>All agents nominal.</p>
<footer>copyright</footer>
</body>
</html>`

func TestWebReaderTool_ExtractsTitleAndContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	args, _ := json.Marshal(map[string]string{"url": server.URL})
	result, err := NewWebReaderTool().Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected tool error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "Fleet Status") {
		t.Errorf("expected title in output, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "All agents nominal.") {
		t.Errorf("expected body text, got %q", result.Output)
	}
	for _, excluded := range []string{"alert", "color:red", "Home | About", "copyright"} {
		if strings.Contains(result.Output, excluded) {
			t.Errorf("non-content markup %q leaked into output", excluded)
		}
	}
}

func TestWebReaderTool_NonOKStatusIsToolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	args, _ := json.Marshal(map[string]string{"url": server.URL})
	result, err := NewWebReaderTool().Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Error, "404") {
		t.Errorf("expected 404 tool error, got %q", result.Error)
	}
}

func TestWebReaderTool_RejectsBadScheme(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"url": "ftp://example.com"})
	result, err := NewWebReaderTool().Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" {
		t.Error("expected scheme rejection")
	}
}

func TestExtractCharset(t *testing.T) {
	cases := []struct {
		contentType string
		want        string
	}{
		{"text/html; charset=gbk", "gbk"},
		{"text/html; charset=UTF-8", "utf-8"},
		{"text/html", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := extractCharset(c.contentType); got != c.want {
			t.Errorf("extractCharset(%q): expected %q, got %q", c.contentType, c.want, got)
		}
	}
}

func TestExtractContent_BlockElementsGetLineBreaks(t *testing.T) {
	title, content, err := extractContent(strings.NewReader(
		"<html><head><title>T</title></head><body><p>one</p><p>two</p></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if title != "T" {
		t.Errorf("expected title T, got %q", title)
	}
	if !strings.Contains(content, "\n") {
		t.Errorf("expected a line break between paragraphs, got %q", content)
	}
}
