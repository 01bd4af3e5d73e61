// Package api is the client for the Go Bangladesh backend. Every endpoint
// speaks the same response envelope: {isSuccess, message, content}. The
// client unwraps the envelope and surfaces backend refusals as APIError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultTimeout for backend requests
	DefaultTimeout = 15 * time.Second
)

// APIError represents a failure reported by the backend, either as an HTTP
// status or an envelope with isSuccess=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// Client talks to the Go Bangladesh backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a backend client. Call SetToken after sign-in to attach
// the bearer token to subsequent requests.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetToken attaches a bearer token to future requests. An empty token
// clears it.
func (c *Client) SetToken(token string) {
	c.token = token
}

// envelope is the generic backend response wrapper.
type envelope struct {
	IsSuccess bool            `json:"isSuccess"`
	Message   string          `json:"message"`
	Content   json.RawMessage `json:"content"`
}

// AuthResult is the payload of a successful login or OTP verification.
type AuthResult struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

// Profile is the passenger's account information.
type Profile struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Gender  string `json:"gender"`
	Address string `json:"address"`

	// Balance is the card balance in taka
	Balance float64 `json:"balance"`

	// CardNumber is the registered transit card, empty if none
	CardNumber string `json:"cardNumber"`
}

// Trip is one completed or ongoing bus trip.
type Trip struct {
	TripID      string  `json:"tripId"`
	BusNumber   string  `json:"busNumber"`
	RouteName   string  `json:"routeName"`
	StartTime   string  `json:"tripStartTime"`
	EndTime     string  `json:"tripEndTime"`
	Fare        float64 `json:"fare"`
	DistanceKm  float64 `json:"distance"`
	BoardingAt  string  `json:"boardingPoint"`
	AlightingAt string  `json:"alightingPoint"`
}

// Transaction is one balance movement on the transit card.
type Transaction struct {
	TransactionID string  `json:"transactionId"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	CreatedAt     string  `json:"createdAt"`
	Description   string  `json:"description"`
}

// Page wraps a paged history response.
type Page[T any] struct {
	Items      []T `json:"items"`
	PageNumber int `json:"pageNumber"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// Login authenticates with phone and password.
func (c *Client) Login(ctx context.Context, phone, password string) (*AuthResult, error) {
	body := map[string]string{"phone": phone, "password": password}
	var result AuthResult
	if err := c.post(ctx, "/api/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestOTP asks the backend to send a one-time code to the phone number.
func (c *Client) RequestOTP(ctx context.Context, phone string) error {
	body := map[string]string{"phone": phone}
	return c.post(ctx, "/api/auth/requestOtp", body, nil)
}

// VerifyOTP exchanges a one-time code for a session.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*AuthResult, error) {
	body := map[string]string{"phone": phone, "otp": code}
	var result AuthResult
	if err := c.post(ctx, "/api/auth/verifyOtp", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Profile fetches the signed-in passenger's account.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.get(ctx, "/api/user/profile", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile writes editable account fields back.
func (c *Client) UpdateProfile(ctx context.Context, p *Profile) error {
	return c.post(ctx, "/api/user/profile", p, nil)
}

// RegisterCard binds a transit card to the account.
func (c *Client) RegisterCard(ctx context.Context, cardNumber string) error {
	body := map[string]string{"cardNumber": cardNumber}
	return c.post(ctx, "/api/card/register", body, nil)
}

// TripHistory fetches one page of past trips.
func (c *Client) TripHistory(ctx context.Context, page, pageSize int) (*Page[Trip], error) {
	query := url.Values{
		"pageNumber": {strconv.Itoa(page)},
		"pageSize":   {strconv.Itoa(pageSize)},
	}
	var result Page[Trip]
	if err := c.get(ctx, "/api/trip/history", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Transactions fetches one page of card transactions.
func (c *Client) Transactions(ctx context.Context, page, pageSize int) (*Page[Transaction], error) {
	query := url.Values{
		"pageNumber": {strconv.Itoa(page)},
		"pageSize":   {strconv.Itoa(pageSize)},
	}
	var result Page[Transaction]
	if err := c.get(ctx, "/api/transaction/history", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// get performs a GET and decodes the envelope content into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// post performs a POST with a JSON body and decodes the envelope content
// into out. out may be nil when the caller only needs success/failure.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and unwraps the response envelope.
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !env.IsSuccess {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, out); err != nil {
			return fmt.Errorf("failed to parse response content: %w", err)
		}
	}
	return nil
}
