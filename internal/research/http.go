package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"research-podcaster/internal/retry"
)

const (
	httpTimeout  = 15 * time.Second
	maxBodyBytes = 4 << 20
	userAgent    = "research-podcaster/1.0 (+https://github.com/research-podcaster)"
)

// httpSource is shared plumbing for the JSON and XML providers: a client,
// an optional request pacer and status code classification.
type httpSource struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(name string, client *http.Client, limiter *rate.Limiter) httpSource {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	return httpSource{name: name, client: client, limiter: limiter}
}

func (s httpSource) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s: new request: %w", s.name, err))
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", s.name, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &retry.StatusError{
			Provider:   s.name,
			StatusCode: resp.StatusCode,
			Body:       snippet(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, nil
}

func (s httpSource) getJSON(ctx context.Context, url string, headers map[string]string, dst interface{}) error {
	body, err := s.get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return retry.Permanent(fmt.Errorf("%s: decode response: %w", s.name, err))
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 160 {
		return s[:160] + "..."
	}
	return s
}

// parseDate accepts the handful of layouts the providers use. Day or month
// components of zero ("2023-05-00") are clamped to one.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.Replace(s, "-00", "-01", 2)
	layouts := []string{time.RFC3339, "2006-01-02", "2006 Jan 2", "2006 Jan", "2006-01", "2006"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	if len(s) >= 4 {
		if t, err := time.Parse("2006", s[:4]); err == nil {
			return &t
		}
	}
	return nil
}
