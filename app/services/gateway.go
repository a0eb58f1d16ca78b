// Package services provides external service integrations and technical concerns like gateways and the billing ledger
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"

	"sms-backend/config"
)

// SendResult is the gateway's answer to a single send attempt. A populated
// MessageID is the delivery-report correlation key.
type SendResult struct {
	Success   bool     `json:"success"`
	MessageID string   `json:"message_id,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	ErrorText string   `json:"error_text,omitempty"`
	// Permanent marks provider rejections that must not be retried
	// (invalid number, blacklisted destination).
	Permanent bool `json:"permanent,omitempty"`
}

// ErrGatewayUnavailable wraps transport-level failures (connect errors,
// timeouts, 5xx). Callers treat it as transient.
var ErrGatewayUnavailable = errors.New("gateway unavailable")

// Gateway is the send contract one provider fulfils.
type Gateway interface {
	Name() string
	Send(ctx context.Context, to, from, body string) (*SendResult, error)
	SupportsCountry(code string) bool
}

// GatewayRegistry resolves the Gateway for a provider name.
type GatewayRegistry interface {
	Get(name string) (Gateway, bool)
	Register(gw Gateway)
}

type gatewayRegistry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewGatewayRegistry builds a registry with one HTTP gateway per configured provider.
func NewGatewayRegistry(cfgs []config.GatewayConfig) GatewayRegistry {
	r := &gatewayRegistry{gateways: make(map[string]Gateway, len(cfgs))}
	for i := range cfgs {
		r.Register(NewHTTPGateway(&cfgs[i]))
	}
	return r
}

func (r *gatewayRegistry) Get(name string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[name]
	return gw, ok
}

func (r *gatewayRegistry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.Name()] = gw
}

// HTTPGatewayImpl sends through a JSON-over-HTTP provider API.
type HTTPGatewayImpl struct {
	config *config.GatewayConfig
	client *http.Client
}

// gatewaySendRequest is the provider API payload
type gatewaySendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

// gatewaySendResponse tolerates the response shapes observed across providers
type gatewaySendResponse struct {
	Success   *bool    `json:"success,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	ErrorText string   `json:"error,omitempty"`
}

// NewHTTPGateway creates a gateway speaking the JSON send protocol
func NewHTTPGateway(cfg *config.GatewayConfig) Gateway {
	return &HTTPGatewayImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *HTTPGatewayImpl) Name() string {
	return g.config.Name
}

func (g *HTTPGatewayImpl) SupportsCountry(code string) bool {
	if len(g.config.SupportedCountries) == 0 {
		return true
	}
	return slices.Contains(g.config.SupportedCountries, code)
}

// Send submits one message. Transport failures and 5xx responses come back
// wrapped in ErrGatewayUnavailable; provider-level rejections come back as an
// unsuccessful SendResult.
func (g *HTTPGatewayImpl) Send(ctx context.Context, to, from, body string) (*SendResult, error) {
	payload, err := json.Marshal(gatewaySendRequest{To: to, From: from, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	url := fmt.Sprintf("%s/messages", g.config.Endpoint)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var parsed gatewaySendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	result := &SendResult{
		MessageID: parsed.MessageID,
		Cost:      parsed.Cost,
		ErrorCode: parsed.ErrorCode,
		ErrorText: parsed.ErrorText,
	}

	switch {
	case parsed.Success != nil:
		result.Success = *parsed.Success
	case resp.StatusCode < 300 && parsed.ErrorText == "" && parsed.ErrorCode == "":
		result.Success = true
	}

	// 4xx rejections are final for this message
	if !result.Success && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		result.Permanent = true
	}

	return result, nil
}
