// Package generator provides a client for the answer-generation service,
// which drafts answers for support questions and judges them against staff answers.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bisq-support/review-engine/internal/resilience"
)

// ServiceName identifies the generator in breaker state and logs.
const ServiceName = "generator"

// Client defines the generator service operations.
type Client interface {
	// Generate drafts an answer for a question under a protocol.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// Score judges a generated answer against the staff answer.
	Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
}

// GenerateRequest asks for a drafted answer.
type GenerateRequest struct {
	Question string `json:"question"`
	Protocol string `json:"protocol,omitempty"`
	// StaffAnswer is passed so the service can score the draft in the same call.
	StaffAnswer string `json:"staff_answer,omitempty"`
}

// Metrics are the scalar judgments the service returns, each in [0,1].
type Metrics struct {
	EmbeddingSimilarity *float64 `json:"embedding_similarity"`
	FactualAlignment    *float64 `json:"factual_alignment"`
	ContradictionScore  *float64 `json:"contradiction_score"`
	Completeness        *float64 `json:"completeness"`
	HallucinationRisk   *float64 `json:"hallucination_risk"`
}

// GenerateResponse is the drafted answer. Metrics is nil when the service
// did not score the draft.
type GenerateResponse struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Metrics    *Metrics `json:"metrics,omitempty"`
}

// ScoreRequest asks the service to judge a generated answer.
type ScoreRequest struct {
	Question        string `json:"question"`
	StaffAnswer     string `json:"staff_answer"`
	GeneratedAnswer string `json:"generated_answer"`
}

// ScoreResponse holds the judgments for a generated answer.
type ScoreResponse struct {
	Metrics Metrics `json:"metrics"`
}

// Option configures the generator client.
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
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
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

// NewClient creates a generator client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://localhost:8000",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.guard == nil {
		c.guard = resilience.NewGuard(resilience.GuardConfig{Service: ServiceName, Retry: resilience.DefaultRetryConfig()}, nil)
	}
	return c
}

func (c *httpClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var out GenerateResponse
	if err := c.post(ctx, "/v1/answers", req, &out); err != nil {
		return nil, eris.Wrap(err, "generator: generate")
	}
	if out.Answer == "" {
		return nil, eris.New("generator: generate: empty answer")
	}
	return &out, nil
}

func (c *httpClient) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	var out ScoreResponse
	if err := c.post(ctx, "/v1/scores", req, &out); err != nil {
		return nil, eris.Wrap(err, "generator: score")
	}
	return &out, nil
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	body, err := resilience.Call(ctx, c.guard, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")
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
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
