package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/droverhq/drover/internal/tool"
)

const (
	webReaderTimeout      = 15 * time.Second
	webReaderMaxBody      = 2 << 20 // 2MB
	webReaderMaxRunes     = 8000    // cap output so the model context doesn't overflow
	webReaderUserAgent    = "Drover/1.0 (Web Reader)"
	webReaderMaxRedirects = 10
)

// webReaderClient is a dedicated HTTP client with an explicit timeout and
// redirect limit, safer than http.DefaultClient.
var webReaderClient = &http.Client{
	Timeout: webReaderTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= webReaderMaxRedirects {
			return fmt.Errorf("exceeded %d redirects", webReaderMaxRedirects)
		}
		return nil
	},
}

// WebReaderTool reads a web page and extracts its title and main text
// content, skipping navigation, scripts, and other non-content markup.
type WebReaderTool struct{}

func NewWebReaderTool() *WebReaderTool { return &WebReaderTool{} }

func (t *WebReaderTool) Name() string { return "web_reader" }
func (t *WebReaderTool) Description() string {
	return "Reads the main text content of a web page. Returns the page title and body text."
}

func (t *WebReaderTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{
			Name:        "url",
			Type:        "string",
			Description: "URL of the page to read (must start with http:// or https://)",
			Required:    true,
		},
	)
}

func (t *WebReaderTool) Init(_ context.Context) error { return nil }
func (t *WebReaderTool) Close() error                 { return nil }

// Execute fetches the given URL and extracts the page title and body text.
func (t *WebReaderTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	url := strings.TrimSpace(a.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return tool.ToolResult{Error: "url must start with http:// or https://"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("build request: %v", err)}, nil
	}
	req.Header.Set("User-Agent", webReaderUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := webReaderClient.Do(req)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tool.ToolResult{Error: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)}, nil
	}

	limitedReader := io.LimitReader(resp.Body, webReaderMaxBody)

	// Transcode to UTF-8 based on the declared charset; fall back to raw bytes.
	utf8Reader, err := charset.NewReaderLabel(extractCharset(resp.Header.Get("Content-Type")), limitedReader)
	if err != nil {
		utf8Reader = limitedReader
	}

	title, content, err := extractContent(utf8Reader)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("parse page: %v", err)}, nil
	}

	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "Title: %s\n\n", title)
	}
	if content == "" {
		sb.WriteString("No readable text content found.")
	} else {
		runes := []rune(content)
		if len(runes) > webReaderMaxRunes {
			content = string(runes[:webReaderMaxRunes]) + "\n\n...(truncated)"
		}
		sb.WriteString(content)
	}

	return tool.ToolResult{Output: sb.String()}, nil
}

// extractCharset pulls the charset value from a Content-Type header, e.g.
// "text/html; charset=gbk" → "gbk". Empty means UTF-8.
func extractCharset(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(part, "charset=") {
			return strings.TrimPrefix(part, "charset=")
		}
	}
	return ""
}

// skipTags are non-content elements whose text is excluded.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "footer": true, "header": true,
	"aside": true, "iframe": true, "svg": true,
}

// extractContent parses HTML and extracts the <title> and body text.
func extractContent(r io.Reader) (title string, content string, err error) {
	tokenizer := html.NewTokenizer(r)

	var sb strings.Builder
	var inTitle bool
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			err := tokenizer.Err()
			result := strings.TrimSpace(sb.String())
			if err == io.EOF {
				return title, result, nil
			}
			return title, result, err

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "title" {
				inTitle = true
			}
			if skipTags[tagName] {
				skipDepth++
			}
			if isBlockElement(tagName) && sb.Len() > 0 {
				s := sb.String()
				if s[len(s)-1] != '\n' {
					sb.WriteString("\n")
				}
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "title" {
				inTitle = false
			}
			if skipTags[tagName] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle && title == "" {
				title = text
				continue
			}
			if skipDepth == 0 {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
	}
}

// isBlockElement returns true for HTML block-level elements that should have
// line breaks between them.
func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "br", "hr", "blockquote", "pre",
		"article", "section", "main", "table":
		return true
	}
	return false
}
