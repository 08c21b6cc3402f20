// Package webfetch provides a producer tool that downloads a web page and
// returns its content as Markdown. It demonstrates the full chunk protocol:
// a user-facing progress message followed by the model-facing result.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/leofalp/toolchat/internal/utils"
	"github.com/leofalp/toolchat/providers/tool"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is the default User-Agent header value
	DefaultUserAgent = "toolchat-webfetch/1.0"
	// MaxBodySize is the maximum response body size (10MB)
	MaxBodySize = 10 * 1024 * 1024
	// DialTimeout is the maximum time to wait for a TCP connection
	DialTimeout = 10 * time.Second
)

// Input holds the parameters passed to the web fetch tool by the language
// model. URL is the only required field.
type Input struct {
	// URL is the web page to fetch; partial values like "example.com" work too
	URL string `json:"url" jsonschema:"description=The URL of the web page to fetch; partial URLs like 'example.com' are normalized to https,required"`

	// TimeoutSeconds overrides the default request timeout
	TimeoutSeconds int `json:"timeout_seconds,omitempty" jsonschema:"description=Request timeout in seconds (default 30)"`
}

// New returns the web fetch tool. The producer first yields a user-facing
// progress message naming the URL, then the page content converted to
// Markdown as the model-facing result.
func New() *tool.Tool[Input] {
	return tool.New("web_fetch",
		"Fetches a web page over HTTP or HTTPS and returns its content converted from HTML to Markdown. Partial URLs are normalized by adding an https prefix and redirects are followed.",
		produce,
	)
}

func produce(ctx context.Context, input Input) iter.Seq2[tool.Chunk, error] {
	return func(yield func(tool.Chunk, error) bool) {
		url := strings.TrimSpace(input.URL)
		if url == "" {
			yield(tool.Chunk{}, &tool.UsageError{Msg: "url must not be empty"})
			return
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}

		if !yield(tool.Message(fmt.Sprintf("Fetching %s", url)), nil) {
			return
		}

		markdown, err := fetchMarkdown(ctx, url, input.TimeoutSeconds)
		if err != nil {
			yield(tool.Chunk{}, err)
			return
		}

		yield(tool.Text(markdown), nil)
	}
}

// fetchMarkdown downloads the page and converts it to Markdown. Status codes
// other than 200 come back as a UsageError so the model can correct the URL.
func fetchMarkdown(ctx context.Context, url string, timeoutSeconds int) (string, error) {
	timeout := DefaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", &tool.UsageError{Msg: fmt.Sprintf("invalid url %q: %v", url, err)}
	}
	httpReq.Header.Set("User-Agent", DefaultUserAgent)

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects (>10)")
			}
			return nil
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer utils.CloseWithLog(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", &tool.UsageError{Msg: fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url)}
	}

	// Read one byte past the limit so a page of exactly MaxBodySize passes.
	htmlBytes, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if len(htmlBytes) > MaxBodySize {
		return "", &tool.UsageError{Msg: fmt.Sprintf("page exceeds the %d byte limit", MaxBodySize)}
	}

	markdown, err := htmltomarkdown.ConvertString(string(htmlBytes))
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}

	return markdown, nil
}
