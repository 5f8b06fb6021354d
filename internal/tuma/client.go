// Package tuma is the HTTP client for the Tuma mobile-money gateway:
// token issuance and STK push initiation. Charge outcomes arrive
// asynchronously on the callback webhook, not through this client.
package tuma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
)

type Client struct {
	baseURL    string
	email      string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, email, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Token requests a short-lived bearer token for subsequent API calls.
func (c *Client) Token(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"email":   c.email,
		"api_key": c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrGatewayAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", apperr.ErrGatewayAuth, resp.StatusCode, string(b))
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", apperr.ErrGatewayAuth, err)
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("%w: empty token in response", apperr.ErrGatewayAuth)
	}
	return tokenResp.Token, nil
}

type STKPushRequest struct {
	Amount      float64 `json:"amount"`
	Phone       string  `json:"phone"`
	Description string  `json:"description"`
	CallbackURL string  `json:"callback_url"`
}

// STKPush asks the gateway to prompt the payer's phone for the charge.
// The returned transaction id is the idempotency key for the callback.
func (c *Client) STKPush(ctx context.Context, token string, push STKPushRequest) (string, error) {
	body, err := json.Marshal(push)
	if err != nil {
		return "", fmt.Errorf("marshal stk-push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/payment/stk-push", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create stk-push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrGatewayRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", apperr.ErrGatewayRequest, resp.StatusCode, string(b))
	}

	var pushResp struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", apperr.ErrGatewayRequest, err)
	}
	if pushResp.TransactionID == "" {
		return "", fmt.Errorf("%w: empty transaction id in response", apperr.ErrGatewayRequest)
	}
	return pushResp.TransactionID, nil
}

// NormalizePhone converts a Kenyan MSISDN into the 2547XXXXXXXX form the
// gateway expects. Accepts 07XXXXXXXX, +2547XXXXXXXX and 2547XXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "254" + strings.TrimLeft(p, "0")
	}
	if len(p) != 12 || !strings.HasPrefix(p, "254") {
		return "", fmt.Errorf("phone number %q: %w", phone, apperr.ErrInvalidArgument)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number %q: %w", phone, apperr.ErrInvalidArgument)
		}
	}
	return p, nil
}
