package aiadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal REST client for an external analysis service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// NewClient constructs an analysis client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("aiadapter: empty base url")
	}
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// AnalysisResult is the outcome of an analysis request.
type AnalysisResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

type analyzeRequest struct {
	Text           string `json:"text"`
	PatientContext string `json:"patient_context,omitempty"`
}

type analyzeResponse struct {
	Content string `json:"content"`
	Error   string `json:"error"`
}

// Analyze submits clinical notes for analysis. A failed upstream call is
// reported in the result rather than as an error so callers can surface it.
func (c *Client) Analyze(ctx context.Context, text, patientContext string) (AnalysisResult, error) {
	if c == nil {
		return AnalysisResult{}, errors.New("aiadapter: nil client")
	}
	if strings.TrimSpace(text) == "" {
		return AnalysisResult{}, errors.New("aiadapter: empty text")
	}

	var resp analyzeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/analyze", analyzeRequest{
		Text:           text,
		PatientContext: patientContext,
	}, &resp); err != nil {
		return AnalysisResult{Success: false, Error: err.Error()}, nil
	}
	if resp.Error != "" {
		return AnalysisResult{Success: false, Error: resp.Error}, nil
	}
	return AnalysisResult{Success: true, Content: resp.Content}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("aiadapter: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
