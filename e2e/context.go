// Package e2e runs feature scenarios against a live governance server.
// The server address and admin token come from GOVENGINE_BASE_URL and
// GOVENGINE_ADMIN_TOKEN.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultActor   = "e2e@govengine"
)

// TestContext carries one scenario's connection settings and the last
// response. A fresh one is built per scenario.
type TestContext struct {
	baseURL    string
	adminToken string
	actor      string
	client     *http.Client

	lastStatus int
	lastBody   []byte
	vars       map[string]string
}

func NewTestContext() *TestContext {
	baseURL := os.Getenv("GOVENGINE_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &TestContext{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: os.Getenv("GOVENGINE_ADMIN_TOKEN"),
		actor:      defaultActor,
		client:     &http.Client{Timeout: 10 * time.Second},
		vars:       make(map[string]string),
	}
}

func (tc *TestContext) SetActor(actor string)      { tc.actor = actor }
func (tc *TestContext) SetAdminToken(token string) { tc.adminToken = token }
func (tc *TestContext) Remember(key, value string) { tc.vars[key] = value }
func (tc *TestContext) Recall(key string) string   { return tc.vars[key] }
func (tc *TestContext) LastStatus() int            { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte           { return tc.lastBody }

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.adminToken != "" {
		req.Header.Set("X-Admin-Token", tc.adminToken)
	}
	if tc.actor != "" {
		req.Header.Set("X-Admin-Actor", tc.actor)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

// GetResponseField walks a dotted path through the last JSON response.
// Numeric segments index into arrays.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w (body: %s)", err, tc.lastBody)
	}
	cur := doc
	for _, seg := range strings.Split(field, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("field %q not found in response: %s", field, tc.lastBody)
			}
			cur = v
		case []any:
			var idx int
			if _, err := fmt.Sscanf(seg, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range for %q", seg, field)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %q of %q", seg, field)
		}
	}
	return cur, nil
}
