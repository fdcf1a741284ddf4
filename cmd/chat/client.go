package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// reply mirrors the API's decision body.
type reply struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
	BugTitle   *string `json:"bug_title"`
}

type client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func newClient(baseURL string, timeout time.Duration, logger *slog.Logger) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Healthy reports whether GET /health answers {"status":"ok"}.
func (c *client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("health check failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok"
}

// Ask sends one question to POST /query.
func (c *client) Ask(ctx context.Context, question string) (reply, error) {
	payload, err := json.Marshal(map[string]string{"query": question})
	if err != nil {
		return reply{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return reply{}, fmt.Errorf("chat: query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return reply{}, fmt.Errorf("chat: query: status %d", resp.StatusCode)
	}

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return reply{}, fmt.Errorf("chat: decode reply: %w", err)
	}
	c.logger.Debug("query answered", "confidence", r.Confidence, "duration", time.Since(start))
	return r, nil
}
