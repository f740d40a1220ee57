package normalize

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const maxPageBytes = 8 << 20

var (
	reInvisible  = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)\b.*?</\s*(script|style|noscript|head|svg)\s*>`)
	reComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	reBlockClose = regexp.MustCompile(`(?i)</(p|div|li|ul|ol|h[1-6]|table|tr|section|article|header|footer|blockquote|pre)>|<br\s*/?>`)
	reTag        = regexp.MustCompile(`(?s)<[^>]*>`)
	reSpaces     = regexp.MustCompile(`[ \t]+`)
	reNewlines   = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText strips markup and returns readable text, with block boundaries
// kept as newlines.
func HTMLToText(page string) string {
	out := reInvisible.ReplaceAllString(page, " ")
	out = reComment.ReplaceAllString(out, " ")
	out = reBlockClose.ReplaceAllString(out, "\n")
	out = reTag.ReplaceAllString(out, " ")
	out = html.UnescapeString(out)
	out = reSpaces.ReplaceAllString(out, " ")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out = strings.Join(lines, "\n")
	out = reNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// HTTPFetcher fetches pages directly, or through a rendering endpoint when
// one is configured so javascript-heavy pages come back with their content.
type HTTPFetcher struct {
	client         *http.Client
	renderEndpoint string
}

func NewHTTPFetcher(renderEndpoint string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPFetcher{
		client:         &http.Client{Timeout: timeout},
		renderEndpoint: renderEndpoint,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	target := pageURL
	if f.renderEndpoint != "" {
		target = f.renderEndpoint + "?url=" + url.QueryEscape(pageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request for %s: %w", pageURL, err)
	}
	rsp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch %s: unexpected status %d", pageURL, rsp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(rsp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read page %s: %w", pageURL, err)
	}
	return string(body), nil
}
