// Package similarity provides a client for the FAQ similarity service,
// which embeds a question and returns the nearest stored FAQs.
package similarity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bisq-support/review-engine/internal/resilience"
)

// ServiceName identifies the similarity service in breaker state and logs.
const ServiceName = "similarity"

// Client defines the similarity service operations.
type Client interface {
	// Search returns FAQs ranked by cosine similarity to question.
	Search(ctx context.Context, question string, limit int) ([]Match, error)
}

// Match is one FAQ returned by the service.
type Match struct {
	FAQID      string  `json:"faq_id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

type searchResponse struct {
	Matches []Match `json:"matches"`
}

// Option configures the similarity client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), int(perSec)+1)
		}
	}
}

// WithGuard routes calls through g instead of a private breaker.
func WithGuard(g *resilience.Guard) Option {
	return func(c *httpClient) {
		c.guard = g
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	guard   *resilience.Guard
}

// NewClient creates a similarity client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://localhost:8000",
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(20, 21),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.guard == nil {
		c.guard = resilience.NewGuard(resilience.GuardConfig{Service: ServiceName, Retry: resilience.DefaultRetryConfig()}, nil)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, question string, limit int) ([]Match, error) {
	q := url.Values{}
	q.Set("q", question)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	reqURL := c.baseURL + "/v1/faqs/search?" + q.Encode()

	body, err := resilience.Call(ctx, c.guard, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "read response body")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError(ServiceName, resp.StatusCode, string(data))
		}
		return data, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "similarity: search")
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "similarity: unmarshal search response")
	}
	return out.Matches, nil
}
