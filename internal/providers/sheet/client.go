// Package sheet talks to the Apps Script web app that keeps one sheet per
// lifecycle stage plus the tool inventory sheet.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"course-workbench/internal/domain"
	"course-workbench/internal/httpx"
)

const (
	contentTypeText = "text/plain;charset=utf-8"
	acceptJSON      = "application/json"

	// ToolsSheet is the inventory sheet the tools endpoint exports by default.
	ToolsSheet = "工具庫存管理"

	DefaultListLimit = 300
)

type Client struct {
	CourseURL string
	ToolsURL  string
	HTTP      *http.Client
	Retry     httpx.RetryConfig
	ListLimit int

	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.HTTP = h
		}
	}
}

func WithRetry(cfg httpx.RetryConfig) Option {
	return func(c *Client) { c.Retry = cfg }
}

func WithListLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.ListLimit = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a client for the course script and the tools export. Both may
// point at the same deployment.
func New(courseURL, toolsURL string, opts ...Option) *Client {
	tr := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &Client{
		CourseURL: strings.TrimSpace(courseURL),
		ToolsURL:  strings.TrimSpace(toolsURL),
		HTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: tr,
		},
		Retry:     httpx.WithAttempts(1),
		ListLimit: DefaultListLimit,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = newBreaker(c.logger)
	return c
}

func newBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sheet",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		// Script-level refusals (not found, bad input) mean the service is up.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsNetwork(err)
		},
	})
}

// envelope is the script's reply shape for every mode.
type envelope struct {
	OK     bool       `json:"ok"`
	Error  string     `json:"error"`
	Items  []Item     `json:"items"`
	Item   *Item      `json:"item"`
	ID     flexString `json:"id"`
	Action string     `json:"action"`
}

// call runs one script request through the breaker and decodes the envelope.
// Failures come back as *domain.NetworkError, or domain.ErrNotFound when the
// script says the row does not exist.
func (c *Client) call(ctx context.Context, op string, build func(context.Context) (*http.Request, error)) (envelope, error) {
	start := c.now()
	v, err := c.breaker.Execute(func() (any, error) {
		var env envelope
		if err := httpx.DoJSON(ctx, c.HTTP, build, &env, c.Retry); err != nil {
			if errors.Is(err, httpx.ErrHTMLPage) {
				err = fmt.Errorf("script returned an html page (check deployment access): %w", err)
			}
			return nil, domain.WrapNetwork(op, err)
		}
		if !env.OK {
			return nil, scriptError(op, env.Error)
		}
		return env, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.WrapNetwork(op, err)
		}
		c.logger.Debug("sheet call failed", zap.String("op", op), zap.Duration("took", c.now().Sub(start)), zap.Error(err))
		return envelope{}, err
	}
	c.logger.Debug("sheet call", zap.String("op", op), zap.Duration("took", c.now().Sub(start)))
	return v.(envelope), nil
}

func scriptError(op, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = op + " failed"
	}
	if strings.Contains(strings.ToLower(msg), "not found") {
		return fmt.Errorf("sheet: %s: %s: %w", op, msg, domain.ErrNotFound)
	}
	return domain.WrapNetwork(op, errors.New(msg))
}

func (c *Client) endpoint(mode string, params url.Values) (string, error) {
	if c.CourseURL == "" {
		return "", &domain.ValidationError{Field: "course_api", Reason: "course API url is not configured"}
	}
	u, err := url.Parse(c.CourseURL)
	if err != nil {
		return "", fmt.Errorf("sheet: invalid course url: %w", err)
	}
	q := u.Query()
	q.Set("mode", mode)
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, op, mode string, params url.Values) (envelope, error) {
	target, err := c.endpoint(mode, params)
	if err != nil {
		return envelope{}, err
	}
	return c.call(ctx, op, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", acceptJSON)
		return r, nil
	})
}

// Ping checks that the script answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", "ping", nil)
	return err
}

func (c *Client) ListRecords(ctx context.Context, stage domain.Stage, query string) ([]domain.CourseRecord, error) {
	params := url.Values{}
	params.Set("state", string(stage))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}
	params.Set("limit", strconv.Itoa(c.ListLimit))

	env, err := c.get(ctx, "list", "list", params)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CourseRecord, 0, len(env.Items))
	for _, it := range env.Items {
		out = append(out, it.Record(stage))
	}
	return out, nil
}

func (c *Client) GetRecord(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error) {
	params := url.Values{}
	params.Set("state", string(stage))
	params.Set("id", id)

	env, err := c.get(ctx, "get", "get", params)
	if err != nil {
		return domain.CourseRecord{}, err
	}
	if env.Item == nil || env.Item.ID == "" {
		return domain.CourseRecord{}, fmt.Errorf("sheet: get %s/%s: %w", stage, id, domain.ErrNotFound)
	}
	return env.Item.Record(stage), nil
}

// UpsertRecord posts the row as text/plain JSON, which the script accepts
// without a CORS preflight. The returned record carries the server's id.
func (c *Client) UpsertRecord(ctx context.Context, stage domain.Stage, rec domain.CourseRecord) (domain.CourseRecord, error) {
	params := url.Values{}
	params.Set("state", string(stage))
	target, err := c.endpoint("upsert", params)
	if err != nil {
		return domain.CourseRecord{}, err
	}
	body, err := json.Marshal(struct {
		Item Item `json:"item"`
	}{FromRecord(rec)})
	if err != nil {
		return domain.CourseRecord{}, err
	}

	env, err := c.call(ctx, "upsert", func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", contentTypeText)
		r.Header.Set("Accept", acceptJSON)
		return r, nil
	})
	if err != nil {
		return domain.CourseRecord{}, err
	}

	saved := rec.Clone()
	if env.Item != nil {
		saved = env.Item.Record(stage)
		// the sheet row only carries tool refs; keep the caller's full tools
		if sameRefs(saved, rec) {
			saved.PrimaryTool = rec.Clone().PrimaryTool
			saved.SecondaryTools = rec.Clone().SecondaryTools
		}
	}
	if id := env.ID.String(); id != "" {
		saved.ID = id
	}
	if saved.ID == "" {
		return domain.CourseRecord{}, domain.WrapNetwork("upsert", errors.New("script did not return an id"))
	}
	saved.Stage = stage
	c.logger.Info("record saved",
		zap.String("stage", string(stage)), zap.String("id", saved.ID), zap.String("action", env.Action))
	return saved, nil
}

func sameRefs(a, b domain.CourseRecord) bool {
	if (a.PrimaryTool == nil) != (b.PrimaryTool == nil) || len(a.SecondaryTools) != len(b.SecondaryTools) {
		return false
	}
	if a.PrimaryTool != nil && a.PrimaryTool.Code != b.PrimaryTool.Code {
		return false
	}
	for i := range a.SecondaryTools {
		if a.SecondaryTools[i].Code != b.SecondaryTools[i].Code {
			return false
		}
	}
	return true
}

func (c *Client) DeleteRecord(ctx context.Context, stage domain.Stage, id string) error {
	params := url.Values{}
	params.Set("state", string(stage))
	params.Set("id", id)
	_, err := c.get(ctx, "delete", "delete", params)
	return err
}

// ToolsEndpoint is the tools URL with the export parameters added when the
// configured URL is a bare deployment link.
func (c *Client) ToolsEndpoint() (string, error) {
	raw := c.ToolsURL
	if raw == "" {
		raw = c.CourseURL
	}
	if raw == "" {
		return "", &domain.ValidationError{Field: "tools_api", Reason: "tools API url is not configured"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sheet: invalid tools url: %w", err)
	}
	q := u.Query()
	if q.Get("format") == "" {
		q.Set("sheet", ToolsSheet)
		q.Set("format", "tools")
		q.Set("_ts", strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchToolCatalog returns the tools export body untouched. The catalog
// normalizer decides what shape it is.
func (c *Client) FetchToolCatalog(ctx context.Context) (any, error) {
	target, err := c.ToolsEndpoint()
	if err != nil {
		return nil, err
	}
	v, err := c.breaker.Execute(func() (any, error) {
		_, body, err := httpx.DoWithRetry(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		}, c.Retry)
		if err != nil {
			return nil, domain.WrapNetwork("tools", err)
		}
		if httpx.LooksLikeHTML(body) {
			return nil, domain.WrapNetwork("tools", errors.New("tools endpoint returned an html page"))
		}
		return json.RawMessage(body), nil
	})
	if err != nil {
		if !domain.IsNetwork(err) {
			err = domain.WrapNetwork("tools", err)
		}
		return nil, err
	}
	c.logger.Debug("tool catalog fetched", zap.Int("bytes", len(v.(json.RawMessage))))
	return v, nil
}
