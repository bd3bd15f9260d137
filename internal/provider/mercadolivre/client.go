package mercadolivre

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/httpclient"
)

// Name is the provider tag used for rate limiting, metrics and secrets.
const Name = "mercadolivre"

// SearchResult is one listing returned by the marketplace search.
type SearchResult struct {
	ID           string
	Title        string
	Price        float64
	SoldQuantity int
	Permalink    string
	Thumbnail    string
	DateCreated  time.Time
}

// ItemDetail carries the fields used to enrich a listing.
type ItemDetail struct {
	ID           string
	SoldQuantity *int
	DateCreated  time.Time
}

// TokenFunc returns a bearer token. An empty token sends no Authorization header.
type TokenFunc func(ctx context.Context) (string, error)

// APIError is a non-retryable 4xx answer from the marketplace.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadolivre returned %d: %s", e.Status, e.Message)
}

// Client talks to the marketplace public API.
type Client struct {
	logger     *zap.Logger
	exec       *httpclient.Executor
	baseURL    string
	site       string
	token      TokenFunc
	invalidate func()
}

// NewClient constructs a marketplace client. token may be nil.
func NewClient(logger *zap.Logger, exec *httpclient.Executor, baseURL string, token TokenFunc) *Client {
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/"),
		site:    "MLB",
		token:   token,
	}
}

// SetTokenInvalidator registers fn to drop a cached token the marketplace
// rejected. The request is then retried once with a freshly resolved token.
func (c *Client) SetTokenInvalidator(fn func()) {
	c.invalidate = fn
}

// ErrorHandler maps marketplace 4xx bodies ({"message","error"}) to errors.
func ErrorHandler(logger *zap.Logger) func(status int, body []byte) error {
	return func(status int, body []byte) error {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = gjson.GetBytes(body, "error").String()
		}
		if msg == "" {
			msg = string(body)
		}
		logger.Warn("mercadolivre.client_error",
			zap.Int("status", status),
			zap.String("message", msg))
		return &APIError{Status: status, Message: msg}
	}
}

func unauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusForbidden
	}
	return false
}

// Search queries listings for term.
// GET /sites/MLB/search?q=
func (c *Client) Search(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", term)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.get(ctx, fmt.Sprintf("/sites/%s/search?%s", c.site, q.Encode()))
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(body, "results")
	out := make([]SearchResult, 0, len(results.Array()))
	results.ForEach(func(_, r gjson.Result) bool {
		created := r.Get("date_created").String()
		if created == "" {
			created = r.Get("stop_time").String()
		}
		out = append(out, SearchResult{
			ID:           r.Get("id").String(),
			Title:        r.Get("title").String(),
			Price:        r.Get("price").Float(),
			SoldQuantity: int(r.Get("sold_quantity").Int()),
			Permalink:    r.Get("permalink").String(),
			Thumbnail:    r.Get("thumbnail").String(),
			DateCreated:  parseTime(created),
		})
		return true
	})
	return out, nil
}

// Item fetches listing details.
// GET /items/{id}
func (c *Client) Item(ctx context.Context, id string) (*ItemDetail, error) {
	body, err := c.get(ctx, "/items/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	d := &ItemDetail{
		ID:          gjson.GetBytes(body, "id").String(),
		DateCreated: parseTime(gjson.GetBytes(body, "date_created").String()),
	}
	if sq := gjson.GetBytes(body, "sold_quantity"); sq.Exists() && sq.Type == gjson.Number {
		n := int(sq.Int())
		d.SoldQuantity = &n
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, authed, err := c.do(ctx, path)
	if err != nil && authed && c.invalidate != nil && unauthorized(err) {
		c.logger.Warn("mercadolivre.token_rejected", zap.Error(err))
		c.invalidate()
		body, _, err = c.do(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("mercadolivre: invalid JSON response from %s", path)
	}
	return body, nil
}

// do sends one GET and reports whether a bearer token was attached.
func (c *Client) do(ctx context.Context, path string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	authed := false
	if c.token != nil {
		tok, err := c.token(ctx)
		switch {
		case err != nil:
			c.logger.Debug("mercadolivre.token_unavailable", zap.Error(err))
		case tok != "":
			req.Header.Set("Authorization", "Bearer "+tok)
			authed = true
		}
	}

	body, err := c.exec.Do(ctx, req, Name)
	return body, authed, err
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000-0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
