// Package feed fetches pages of the Instagram v1 tag feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ppiankov/tagwatch/internal/settings"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "tagwatch/1.0"
	maxBodyBytes     = 10 << 20
)

// CursorSource yields the stored next-page URL for Older fetches.
type CursorSource interface {
	NextURL(ctx context.Context) (string, bool, error)
}

// Page is one decoded feed response.
type Page struct {
	Items   []Item
	NextURL string
}

// Item is one media entry. Err is set when the entry could not be decoded
// or lacks an id or creation time; the other fields are then unreliable.
type Item struct {
	ID          string
	Caption     string
	Username    string
	PhotoURL    string
	Link        string
	CreatedTime int64
	Err         error
}

type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches tag feed pages.
type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
	settings  settings.Getter
	cursor    CursorSource
	logger    *slog.Logger
}

// NewClient creates a feed client. A base URL is required.
func NewClient(cfg ClientConfig, s settings.Getter, cursor CursorSource, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("feed: base url is required")
	}
	if s == nil {
		return nil, errors.New("feed: settings are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		settings:  s,
		cursor:    cursor,
		logger:    logger,
	}, nil
}

// FetchPage retrieves one page in the given direction. It returns a nil page
// and nil error when no access token is configured or the response carries
// no data array.
func (c *Client) FetchPage(ctx context.Context, dir Direction) (*Page, error) {
	token, err := settings.AccessToken(ctx, c.settings)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	target := ""
	if dir == Older && c.cursor != nil {
		next, ok, err := c.cursor.NextURL(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve cursor: %w", err)
		}
		if ok {
			target = next
		}
	}
	if target == "" {
		target, err = c.recentURL(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Debug("fetch feed page", "direction", dir.String(), "url", redactToken(target))
	return c.get(ctx, target)
}

func (c *Client) recentURL(ctx context.Context, token string) (string, error) {
	tag, err := settings.Hashtag(ctx, c.settings)
	if err != nil {
		return "", err
	}
	count, err := settings.BatchSize(ctx, c.settings)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u := base.JoinPath("v1", "tags", tag, "media", "recent")
	u.RawQuery = url.Values{
		"access_token": {token},
		"count":        {strconv.Itoa(count)},
	}.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, target string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if env.Data == nil {
		return nil, nil
	}

	page := &Page{
		Items:   make([]Item, 0, len(env.Data)),
		NextURL: env.Pagination.NextURL,
	}
	for _, raw := range env.Data {
		page.Items = append(page.Items, decodeItem(raw))
	}
	return page, nil
}

// redactToken hides the access token in log output.
func redactToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", settings.Mask(q.Get("access_token")))
		u.RawQuery = q.Encode()
	}
	return u.String()
}
