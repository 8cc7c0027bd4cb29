/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend is the HTTP client of the card service. The editor uses it
// as its default navigator: once both faces are exported the navigation
// context is posted to the service, which answers with the next step.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	applog "cardcanvas/internal/log"
)

// Client is a minimal HTTP client for the card service API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	log     *slog.Logger

	mu   sync.Mutex
	last *Submission
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
// A non-positive timeout means 10s.
func NewClient(baseURL string, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: b,
		Token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     applog.WithComponent("backend"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server %s %s: %s %s", method, u.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if dest == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}

// Submission is the service's answer to a finished card.
type Submission struct {
	ID   string `json:"id"`
	Next string `json:"next"`
}

// Advance posts the navigation context of a finished card. It satisfies the
// editor's Navigator.
func (c *Client) Advance(ctx context.Context, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("navigation context is not valid JSON")
	}
	var sub Submission
	if err := c.do(ctx, http.MethodPost, "/api/cards", payload, &sub); err != nil {
		return fmt.Errorf("submit card: %w", err)
	}
	c.mu.Lock()
	c.last = &sub
	c.mu.Unlock()
	c.log.Info("card submitted", slog.String("id", sub.ID), slog.String("next", sub.Next))
	return nil
}

// Last returns the most recent submission, if any.
func (c *Client) Last() (Submission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Submission{}, false
	}
	return *c.last, true
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
