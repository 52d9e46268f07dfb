package retailer

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/tidwall/gjson"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"

// apiClient issues credentialed JSON requests against retailer storefront APIs
type apiClient struct {
	httpClient *http.Client
	tag        string
}

func newAPIClient(tag string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &apiClient{
		httpClient: &http.Client{Timeout: timeout},
		tag:        tag,
	}
}

// getJSON performs a GET and returns the body once it is known to be valid JSON.
// Failures come back as classified *domain.ScrapeError values.
func (c *apiClient) getJSON(ctx context.Context, reqURL string, creds *domain.SessionCredentials, extra map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewConfigurationError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", defaultUserAgent)
	if creds != nil {
		for k, v := range creds.Headers {
			req.Header.Set(k, v)
		}
		if cookie := cookieHeader(creds.Cookies); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[%s] Request error: %v", c.tag, err)
		return nil, domain.NewTransientError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError("failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[%s] API error - Status: %d", c.tag, resp.StatusCode)
		return nil, domain.ClassifyStatus(resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, domain.NewParseError(fmt.Sprintf("invalid JSON from %s", req.URL.Host), nil)
	}
	return body, nil
}

// cookieHeader renders a cookie jar in stable name order
func cookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

// priceOf reads a JSON number or numeric string; missing or empty values are unknown
func priceOf(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		p := v.Float()
		return &p
	case gjson.String:
		s := strings.TrimPrefix(strings.TrimSpace(v.String()), "$")
		if s == "" {
			return nil
		}
		r := gjson.Parse(s)
		if r.Type != gjson.Number {
			return nil
		}
		p := r.Float()
		return &p
	default:
		return nil
	}
}
