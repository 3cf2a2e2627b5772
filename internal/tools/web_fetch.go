package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	// fetchTimeout bounds one fetch call.
	fetchTimeout = 20 * time.Second
	// fetchMaxBytes caps the response body read.
	fetchMaxBytes = 2 << 20 // 2 MiB
	// fetchMaxOutput caps the formatted output handed back to the LLM.
	fetchMaxOutput = 20000
)

// WebFetchTool fetches a URL and returns its content as plain text or
// markdown, with scripts and styles stripped.
type WebFetchTool struct {
	client *http.Client
}

// NewWebFetchTool creates a web fetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

func (t *WebFetchTool) Name() string {
	return "web_fetch"
}

func (t *WebFetchTool) Description() string {
	return "Fetch content from a URL. Returns the page as plain text or markdown."
}

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to fetch. Must start with http:// or https://",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"text", "markdown"},
				"default":     "text",
				"description": "Output format: 'text' strips HTML tags, 'markdown' converts HTML to Markdown",
			},
		},
		"required": []string{"url"},
	}
}

type webFetchArgs struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

func (t *WebFetchTool) Execute(args string) (string, error) {
	return t.ExecuteWithContext(context.Background(), args)
}

func (t *WebFetchTool) ExecuteWithContext(ctx context.Context, args string) (string, error) {
	var parsed webFetchArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if !strings.HasPrefix(parsed.URL, "http://") && !strings.HasPrefix(parsed.URL, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "boardkit-dispatch/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") {
		return truncate(string(body), fetchMaxOutput), nil
	}

	switch parsed.Format {
	case "markdown":
		converter := md.NewConverter("", true, nil)
		markdown, err := converter.ConvertString(string(body))
		if err != nil {
			return "", fmt.Errorf("markdown conversion failed: %w", err)
		}
		return truncate(markdown, fetchMaxOutput), nil
	default:
		text, err := htmlToText(string(body))
		if err != nil {
			return "", err
		}
		return truncate(text, fetchMaxOutput), nil
	}
}

// htmlToText strips scripts/styles and collapses the document to visible text.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}
