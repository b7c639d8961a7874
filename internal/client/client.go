// Package client is a typed HTTP client for the coffee shop API. It talks to
// the apiServerUrl of an environment record exactly as configured.
package client

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

	"github.com/eugenenazirov/coffee-shop/internal/drinks"
	"github.com/eugenenazirov/coffee-shop/internal/environment"
)

// Client provides typed access to the coffee shop API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New constructs a Client for env.APIServerURL. The address is used as-is;
// only a trailing slash is dropped before paths are appended.
func New(env environment.Environment, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(env.APIServerURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid api server url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid api server url %q: expected http(s)://host[:port]", base)
	}

	cli := &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL reports the address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API. Code is set for
// authentication failures, which carry a machine-readable code instead of
// a numeric one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("api request failed (%d): %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Health mirrors the /health payload.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type drinksPayload[T any] struct {
	Success bool `json:"success"`
	Drinks  []T  `json:"drinks"`
}

type deletePayload struct {
	Success bool  `json:"success"`
	Delete  int64 `json:"delete"`
}

type drinkPayload struct {
	Title  string        `json:"title"`
	Recipe drinks.Recipe `json:"recipe,omitempty"`
}

// Health reports the server status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

// ListDrinks returns the public menu.
func (c *Client) ListDrinks(ctx context.Context) ([]drinks.ShortDrink, error) {
	var out drinksPayload[drinks.ShortDrink]
	if err := c.do(ctx, http.MethodGet, "/drinks", nil, &out); err != nil {
		return nil, err
	}
	return out.Drinks, nil
}

// DrinkDetails returns every drink with its full recipe.
func (c *Client) DrinkDetails(ctx context.Context) ([]drinks.Drink, error) {
	var out drinksPayload[drinks.Drink]
	if err := c.do(ctx, http.MethodGet, "/drinks-detail", nil, &out); err != nil {
		return nil, err
	}
	return out.Drinks, nil
}

// CreateDrink adds a drink and returns it with its assigned id.
func (c *Client) CreateDrink(ctx context.Context, drink drinks.Drink) (drinks.Drink, error) {
	var out drinksPayload[drinks.Drink]
	payload := drinkPayload{Title: drink.Title, Recipe: drink.Recipe}
	if err := c.do(ctx, http.MethodPost, "/drinks", payload, &out); err != nil {
		return drinks.Drink{}, err
	}
	return first(out.Drinks)
}

// UpdateDrink changes the title of drink.ID and, when drink.Recipe is
// non-empty, its recipe.
func (c *Client) UpdateDrink(ctx context.Context, drink drinks.Drink) (drinks.Drink, error) {
	var out drinksPayload[drinks.Drink]
	payload := drinkPayload{Title: drink.Title, Recipe: drink.Recipe}
	if err := c.do(ctx, http.MethodPatch, drinkPath(drink.ID), payload, &out); err != nil {
		return drinks.Drink{}, err
	}
	return first(out.Drinks)
}

// DeleteDrink removes the drink with the given id.
func (c *Client) DeleteDrink(ctx context.Context, id int64) error {
	var out deletePayload
	if err := c.do(ctx, http.MethodDelete, drinkPath(id), nil, &out); err != nil {
		return err
	}
	if out.Delete != id {
		return fmt.Errorf("server deleted drink %d, expected %d", out.Delete, id)
	}
	return nil
}

func drinkPath(id int64) string {
	return "/drinks/" + strconv.FormatInt(id, 10)
}

func first(list []drinks.Drink) (drinks.Drink, error) {
	if len(list) == 0 {
		return drinks.Drink{}, errors.New("response contained no drink")
	}
	return list[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError understands both error shapes the API emits:
// {"success":false,"error":404,"message":...} and {"code":...,"description":...}.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var payload struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = payload.Code
	apiErr.Message = payload.Message
	if apiErr.Message == "" {
		apiErr.Message = payload.Description
	}
	return apiErr
}
