package upstream

import (
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

	"github.com/cenkalti/backoff/v5"

	appLog "statuscal/internal/log"
	"statuscal/internal/model"
)

var (
	// ErrTransport marks any failure to obtain a usable response: network
	// errors, non-2xx statuses after retries, undecodable bodies.
	ErrTransport = errors.New("upstream: transport failure")

	// ErrNotFound is returned for a 404 from the detail service. Callers
	// treat it as an absent record, not as a failure.
	ErrNotFound = errors.New("upstream: not found")
)

const maxBodyBytes = 8 << 20

// PageRequest describes one request to the log query service.
type PageRequest struct {
	Identity model.Identity
	Types    []string
	Size     int

	// Next and Prev are continuation tokens from a previous page. At most
	// one is sent; Next wins.
	Next string
	Prev string
}

// Page is one response of the log query service.
type Page struct {
	Message string           `json:"message"`
	Entries []model.LogEntry `json:"data"`
	Next    string           `json:"next"`
	Prev    string           `json:"prev"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	// Dev sends dev=true to the log service, which enables the feed format.
	Dev bool

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client talks to the log query service and the task detail service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	dev        bool
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		dev:        opts.Dev,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// FetchPage requests one page of log entries. Every failure, a 404
// included, matches ErrTransport.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	u, err := c.pageURL(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var page Page
	if err := c.getJSON(ctx, u, &page); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Page{}, fmt.Errorf("%w: GET %s: %w", ErrTransport, redactURL(u), err)
		}
		return Page{}, err
	}
	return page, nil
}

func (c *Client) pageURL(req PageRequest) (string, error) {
	if req.Next != "" {
		if u, ok := c.cursorURL(req.Next); ok {
			return u, nil
		}
	} else if req.Prev != "" {
		if u, ok := c.cursorURL(req.Prev); ok {
			return u, nil
		}
	}

	q := url.Values{}
	if c.dev {
		q.Set("dev", "true")
		q.Set("format", "feed")
	}
	if len(req.Types) > 0 {
		q.Set("type", strings.Join(req.Types, ","))
	}
	switch {
	case req.Identity.Username != "":
		q.Set("username", req.Identity.Username)
	case req.Identity.ID != "":
		q.Set("userId", req.Identity.ID)
	default:
		return "", errors.New("page request has no identity")
	}
	if req.Size > 0 {
		q.Set("size", strconv.Itoa(req.Size))
	}
	if req.Next != "" {
		q.Set("next", req.Next)
	} else if req.Prev != "" {
		q.Set("prev", req.Prev)
	}
	return c.baseURL + "/logs?" + q.Encode(), nil
}

// cursorURL resolves a continuation token that is itself a link. The log
// service returns either a full URL, a root-relative path, or an opaque
// token; only the first two are followed verbatim.
func (c *Client) cursorURL(cursor string) (string, bool) {
	switch {
	case strings.HasPrefix(cursor, "http://"), strings.HasPrefix(cursor, "https://"):
		return cursor, true
	case strings.HasPrefix(cursor, "/"):
		return c.baseURL + cursor, true
	default:
		return "", false
	}
}

// FetchTask fetches the detail record of one task. A 404 or an empty record
// yields ErrNotFound.
func (c *Client) FetchTask(ctx context.Context, id string) (model.TaskDetail, error) {
	if strings.TrimSpace(id) == "" {
		return model.TaskDetail{}, ErrNotFound
	}

	var raw json.RawMessage
	if err := c.getJSON(ctx, c.baseURL+"/tasks/"+url.PathEscape(id)+"/details", &raw); err != nil {
		return model.TaskDetail{}, err
	}

	detail, err := decodeTaskDetail(raw)
	if err != nil {
		return model.TaskDetail{}, fmt.Errorf("%w: decode task %s: %v", ErrTransport, id, err)
	}
	if detail.Empty() {
		return model.TaskDetail{}, ErrNotFound
	}
	if detail.ID == "" {
		detail.ID = id
	}
	return detail, nil
}

// decodeTaskDetail accepts both {"taskData": {...}} and a bare record.
func decodeTaskDetail(raw json.RawMessage) (model.TaskDetail, error) {
	var wrapped struct {
		TaskData *model.TaskDetail `json:"taskData"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return model.TaskDetail{}, err
	}
	if wrapped.TaskData != nil {
		return *wrapped.TaskData, nil
	}
	var bare model.TaskDetail
	if err := json.Unmarshal(raw, &bare); err != nil {
		return model.TaskDetail{}, err
	}
	return bare, nil
}

// FetchAssigned lists tasks whose assignee is the given user id or username.
func (c *Client) FetchAssigned(ctx context.Context, assignee string) ([]model.TaskDetail, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, nil
	}
	q := url.Values{}
	if c.dev {
		q.Set("dev", "true")
	}
	q.Set("assignee", assignee)

	var resp struct {
		Tasks []model.TaskDetail `json:"tasks"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/tasks?"+q.Encode(), &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Tasks, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// getJSON issues a GET with bounded retries on network errors, 429 and 5xx,
// and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if id := RequestIDFrom(ctx); id != "" {
			req.Header.Set("X-Request-Id", id)
		}

		appLog.Debug("upstream request", "url", redactURL(u), "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return struct{}{}, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			if err := json.Unmarshal(body, out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return struct{}{}, nil
		case resp.StatusCode == http.StatusNotFound:
			return struct{}{}, backoff.Permanent(ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return struct{}{}, &statusError{code: resp.StatusCode, body: snippet(body)}
		default:
			return struct{}{}, backoff.Permanent(&statusError{code: resp.StatusCode, body: snippet(body)})
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = c.maxDelay

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	appLog.Error("upstream request failed", err, "url", redactURL(u), "attempts", attempt)
	return fmt.Errorf("%w: GET %s: %v", ErrTransport, redactURL(u), err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return s
}

// redactURL drops the query string of a URL for logging purposes, since it
// carries usernames and cursors.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "upstream://...(redacted)"
	}
	if parsed.RawQuery == "" {
		return parsed.Scheme + "://" + parsed.Host + parsed.Path
	}
	return parsed.Scheme + "://" + parsed.Host + parsed.Path + "?...(redacted)"
}
