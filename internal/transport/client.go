package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
)

const maxErrorBody = 4 << 10

// HTTPError is a non-2xx gateway response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the gateway REST endpoints.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for the gateway at baseURL. A nil httpClient
// uses a client with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: httpClient}, nil
}

// BaseURL returns the gateway base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Health probes the gateway.
func (c *Client) Health(ctx context.Context) (v1.Health, error) {
	var h v1.Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h)
	return h, err
}

// FetchHistory returns a window of a conversation's stored messages, newest
// window first.
func (c *Client) FetchHistory(ctx context.Context, conversationID string, limit, offset int) (convo.Page[convo.Message], error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var list v1.MessageList
	if err := c.do(ctx, http.MethodGet, "/api/messages", q, nil, &list); err != nil {
		return convo.Page[convo.Message]{}, err
	}
	items := make([]convo.Message, 0, len(list.Items))
	for _, p := range list.Items {
		m, err := v1.ToMessage(p)
		if err != nil {
			return convo.Page[convo.Message]{}, fmt.Errorf("history item %s: %w", p.MessageID, err)
		}
		items = append(items, m)
	}
	return convo.NewPage(items, list.Pagination.Total, limit, offset), nil
}

// ListConversations serves one window of active conversations.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) ([]convo.Conversation, int, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("list conversations: limit must be positive")
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(offset/limit+1))
	q.Set("pageSize", strconv.Itoa(limit))

	var list v1.SessionList
	if err := c.do(ctx, http.MethodGet, "/api/sessions", q, nil, &list); err != nil {
		return nil, 0, err
	}
	if list.Error != "" {
		return nil, 0, fmt.Errorf("list conversations: %s", list.Error)
	}
	out := make([]convo.Conversation, 0, len(list.Items))
	for _, s := range list.Items {
		out = append(out, v1.FromSession(s))
	}
	return out, list.Pagination.Total, nil
}

// FindSent looks up the message stored under clientMsgID. It reports false
// when the gateway has no such message.
func (c *Client) FindSent(ctx context.Context, conversationID, clientMsgID string) (convo.Message, bool, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)
	q.Set("clientMsgId", clientMsgID)

	var p v1.ChatPayload
	err := c.do(ctx, http.MethodGet, "/api/messages/sent", q, nil, &p)
	var herr *HTTPError
	if errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
		return convo.Message{}, false, nil
	}
	if err != nil {
		return convo.Message{}, false, err
	}
	m, err := v1.ToMessage(p)
	if err != nil {
		return convo.Message{}, false, fmt.Errorf("sent message %s: %w", p.MessageID, err)
	}
	return m, true, nil
}

// SendWhatsApp asks the gateway to deliver a WhatsApp message. A provider
// rejection comes back as Success=false, not as an error.
func (c *Client) SendWhatsApp(ctx context.Context, req v1.SendRequest) (v1.SendResponse, error) {
	var resp v1.SendResponse
	err := c.do(ctx, http.MethodPost, "/api/whatsapp/send", nil, req, &resp)
	var herr *HTTPError
	if err != nil && errors.As(err, &herr) && herr.StatusCode == http.StatusBadGateway {
		if jerr := json.Unmarshal([]byte(herr.Body), &resp); jerr == nil {
			return resp, nil
		}
	}
	return resp, err
}

// Updates returns changes to a WhatsApp conversation after cursor. A nil
// cursor starts at the current head.
func (c *Client) Updates(ctx context.Context, conversationID string, cursor *int64) (v1.UpdatesResponse, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)
	if cursor != nil {
		q.Set("cursor", strconv.FormatInt(*cursor, 10))
	}
	var resp v1.UpdatesResponse
	err := c.do(ctx, http.MethodGet, "/api/whatsapp/updates", q, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectionError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
