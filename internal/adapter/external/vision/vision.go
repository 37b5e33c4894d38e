// Package vision proxies image annotation requests to the Google Cloud
// Vision API and condenses the response into item name hints.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fridgemind/internal/platform/httpclient"
	"fridgemind/internal/shared"
	"fridgemind/pkg/retry"
)

const (
	annotatePath = "/v1/images:annotate"

	maxLabelResults = 10
	maxTextResults  = 5
	// maxTextHints caps the tokens taken from the detected text block.
	// Labels are never capped here, so the combined list can hold up to
	// maxTextHints+maxLabelResults entries.
	maxTextHints = 10
)

// Client calls the Vision API images:annotate endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	log     *slog.Logger
	retry   retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *httpclient.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRetryConfig overrides the retry policy for annotate calls.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a Vision API client. The API key travels as a query
// parameter, so request logging redacts it.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     slog.Default(),
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 300 * time.Millisecond,
			MaxDelay:     3 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(
			httpclient.WithTimeout(15*time.Second),
			httpclient.WithLogger(c.log),
			httpclient.WithURLRedactor(redactKey),
		)
	}
	return c
}

// transientError marks a failure worth retrying: network errors, 429s
// and 5xx responses.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

func redactKey(u *url.URL) string {
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
	}
	r := *u
	r.RawQuery = q.Encode()
	return r.String()
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotation struct {
	Description string `json:"description"`
}

type annotateResponse struct {
	Responses []struct {
		LabelAnnotations []annotation `json:"labelAnnotations"`
		TextAnnotations  []annotation `json:"textAnnotations"`
		Error            *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Annotate submits a base64-encoded image and returns item name hints:
// up to ten tokens read off the packaging first, then every scene label,
// with case-insensitive duplicates removed. Upstream failures are retried
// on the client's retry policy before surfacing as upstream errors.
func (c *Client) Annotate(ctx context.Context, imageBase64 string) ([]string, error) {
	if imageBase64 == "" {
		return nil, shared.MarkKind(fmt.Errorf("image content is empty"), shared.KindValidation)
	}

	body, err := json.Marshal(annotateRequest{
		Requests: []annotateEntry{{
			Image: imageContent{Content: imageBase64},
			Features: []feature{
				{Type: "LABEL_DETECTION", MaxResults: maxLabelResults},
				{Type: "TEXT_DETECTION", MaxResults: maxTextResults},
			},
		}},
	})
	if err != nil {
		return nil, shared.Wrap(err, "encode annotate request")
	}

	var parsed annotateResponse
	attempt := func(ctx context.Context) error {
		parsed = annotateResponse{}
		reqURL := c.baseURL + annotatePath + "?key=" + url.QueryEscape(c.apiKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return shared.Wrap(err, "build annotate request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return &transientError{shared.MarkKind(shared.Wrap(err, "call vision api"), shared.KindUpstream)}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return shared.MarkKind(shared.Wrap(err, "read vision response"), shared.KindUpstream)
		}
		if resp.StatusCode != http.StatusOK {
			err := shared.MarkKind(fmt.Errorf("vision api returned status %d", resp.StatusCode), shared.KindUpstream)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return &transientError{err}
			}
			return err
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return shared.MarkKind(shared.Wrap(err, "decode vision response"), shared.KindUpstream)
		}
		return nil
	}

	retryable := func(err error) bool {
		var te *transientError
		return errors.As(err, &te) && !shared.IsCanceled(err)
	}
	if err := retry.DoWithRetryable(ctx, c.retry, attempt, retryable); err != nil {
		var exceeded *retry.RetriesExceededError
		if errors.As(err, &exceeded) {
			err = exceeded.Unwrap()
		}
		return nil, err
	}

	if len(parsed.Responses) == 0 {
		return nil, nil
	}
	r := parsed.Responses[0]
	if r.Error != nil {
		return nil, shared.MarkKind(fmt.Errorf("vision api: %s", r.Error.Message), shared.KindUpstream)
	}

	return mergeHints(r.TextAnnotations, r.LabelAnnotations), nil
}

// mergeHints prefers packaging text over scene labels. The first text
// annotation is the full detected block; its leading tokens usually name
// the product. Only the text tokens are capped, before deduplication, so
// labels always make it into the list.
func mergeHints(texts, labels []annotation) []string {
	hints := make([]string, 0, maxTextHints+maxLabelResults)
	seen := map[string]bool{}

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if seen[key] {
			return
		}
		seen[key] = true
		hints = append(hints, s)
	}

	if len(texts) > 0 {
		tokens := strings.Fields(texts[0].Description)
		if len(tokens) > maxTextHints {
			tokens = tokens[:maxTextHints]
		}
		for _, tok := range tokens {
			add(tok)
		}
	}
	for _, l := range labels {
		add(l.Description)
	}
	return hints
}
