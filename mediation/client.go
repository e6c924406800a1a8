// Package mediation wraps the generative-AI service that returns advisory verdicts for
// dispute mediation and identity verification. Verdicts are advice only; nothing in
// this package moves funds or changes account state.
package mediation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agrinetwork/config"
)

var (
	// ErrServiceUnavailable covers transport failures, timeouts and non-2xx answers.
	ErrServiceUnavailable = errors.New("mediation: external service unavailable")
	// ErrUnparseableVerdict signals the model answered but not with a usable verdict.
	ErrUnparseableVerdict = errors.New("mediation: unparseable verdict")
)

const (
	RecommendRelease  = "release"
	RecommendRefund   = "refund"
	RecommendApprove  = "approve"
	RecommendReject   = "reject"
	RecommendEscalate = "escalate"
)

const maxResponseBytes = 1 << 20

// Verdict is the advisory answer of the AI collaborator.
type Verdict struct {
	Recommendation string `json:"recommendation"`
	Rationale      string `json:"rationale"`
}

// Requester is anything that can turn a prompt into a verdict.
type Requester interface {
	RequestVerdict(ctx context.Context, prompt string) (Verdict, error)
}

// Client calls a Gemini-style generateContent endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	timeout    time.Duration
}

// NewClient builds a client from configuration. httpClient may be nil.
func NewClient(cfg config.MediationConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// RequestVerdict sends prompt to the model and parses its answer. The call is bounded
// by the configured timeout on top of any deadline already carried by ctx.
func (c *Client) RequestVerdict(ctx context.Context, prompt string) (Verdict, error) {
	if c.apiKey == "" {
		return Verdict{}, fmt.Errorf("%w: client disabled", ErrServiceUnavailable)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", Temperature: 0.2},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("mediation: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("mediation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: read body: %v", ErrServiceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verdict{}, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode envelope: %v", ErrUnparseableVerdict, err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return Verdict{}, fmt.Errorf("%w: empty candidates", ErrUnparseableVerdict)
	}

	var text strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return ParseVerdict(text.String())
}

// ParseVerdict extracts the first JSON object from model text, tolerating markdown
// fences and surrounding prose.
func ParseVerdict(text string) (Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("%w: no json object", ErrUnparseableVerdict)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnparseableVerdict, err)
	}
	v.Recommendation = strings.ToLower(strings.TrimSpace(v.Recommendation))
	v.Rationale = strings.TrimSpace(v.Rationale)
	if v.Recommendation == "" {
		return Verdict{}, fmt.Errorf("%w: missing recommendation", ErrUnparseableVerdict)
	}
	return v, nil
}
