/**
 * @description
 * This package provides a client for the Toss Payments widget bridge. The
 * widget itself is an opaque third-party component; this client only speaks
 * its documented call contract: load a widget for a customer key, render the
 * payment-method selector into a target, keep the displayed amount in sync,
 * and request payment. Payment failures carry a provider `code` that the
 * checkout layer triages.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, log, net/http, time: Standard Go libraries.
 */
package tosspayments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Provider error codes surfaced by requestPayment and render operations.
const (
	CodeNotRenderedPaymentUI     = "NOT_RENDERED_PAYMENT_UI"
	CodeNotSelectedPaymentMethod = "NOT_SELECTED_PAYMENT_METHOD"
	CodeInvalidSuccessURL        = "INVALID_SUCCESS_URL"
	CodeInvalidFailURL           = "INVALID_FAIL_URL"
)

// CurrencyKRW is the only currency the storefront charges in.
const CurrencyKRW = "KRW"

// UIConfig selects the widget's visual configuration. A named variant key
// takes precedence over an explicit theme; the zero value renders bare.
type UIConfig struct {
	VariantKey string `json:"variantKey,omitempty"`
	Theme      string `json:"theme,omitempty"` // 'dark' or 'light'
}

// Bare reports whether the config requests no theming at all.
func (u UIConfig) Bare() bool {
	return u.VariantKey == "" && u.Theme == ""
}

// Amount is a widget-facing monetary value.
type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

// PaymentRequest is the payload for the widget's request-payment operation.
// The provider reacts with a browser navigation to SuccessURL or FailURL;
// there is no direct success callback.
type PaymentRequest struct {
	OrderID             string            `json:"orderId"`
	OrderName           string            `json:"orderName"`
	SuccessURL          string            `json:"successUrl"`
	FailURL             string            `json:"failUrl"`
	CustomerEmail       string            `json:"customerEmail,omitempty"`
	CustomerName        string            `json:"customerName"`
	CustomerMobilePhone string            `json:"customerMobilePhone"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// WidgetError represents a typed error from the widget bridge.
type WidgetError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WidgetError) Error() string {
	return fmt.Sprintf("toss widget error: %s - %s", e.Code, e.Message)
}

// Client is a client for the Toss Payments widget bridge.
type Client struct {
	BaseURL    string
	ClientKey  string
	HTTPClient *http.Client
}

// NewClient creates a new widget bridge client.
func NewClient(baseURL, clientKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ClientKey: clientKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Widget is a loaded widget instance bound to one customer key.
type Widget struct {
	client      *Client
	ID          string
	CustomerKey string
}

// MethodsHandle is a rendered payment-method selector.
type MethodsHandle struct {
	client   *Client
	widgetID string
	ID       string
}

// Load creates a widget instance for the given customer key.
func (c *Client) Load(ctx context.Context, customerKey string, ui UIConfig) (*Widget, error) {
	reqBody := struct {
		CustomerKey string   `json:"customerKey"`
		UIConfig    UIConfig `json:"uiConfig"`
	}{CustomerKey: customerKey, UIConfig: ui}

	var resp struct {
		WidgetID string `json:"widgetId"`
	}
	if err := c.do(ctx, "POST", "/v1/widgets", reqBody, &resp); err != nil {
		return nil, err
	}
	return &Widget{client: c, ID: resp.WidgetID, CustomerKey: customerKey}, nil
}

// RenderPaymentMethods renders the payment-method selector into the given
// target with the current amount. The render can silently no-op on an
// invalid configuration key; callers must confirm mounting via the handle.
func (w *Widget) RenderPaymentMethods(ctx context.Context, target string, amount Amount, ui UIConfig) (*MethodsHandle, error) {
	reqBody := struct {
		Target   string   `json:"target"`
		Amount   Amount   `json:"amount"`
		UIConfig UIConfig `json:"uiConfig"`
	}{Target: target, Amount: amount, UIConfig: ui}

	var resp struct {
		HandleID string `json:"handleId"`
	}
	path := fmt.Sprintf("/v1/widgets/%s/payment-methods", w.ID)
	if err := w.client.do(ctx, "POST", path, reqBody, &resp); err != nil {
		return nil, err
	}
	return &MethodsHandle{client: w.client, widgetID: w.ID, ID: resp.HandleID}, nil
}

// RenderAgreement renders the terms-agreement block.
func (w *Widget) RenderAgreement(ctx context.Context, target string, ui UIConfig) error {
	reqBody := struct {
		Target   string   `json:"target"`
		UIConfig UIConfig `json:"uiConfig"`
	}{Target: target, UIConfig: ui}
	path := fmt.Sprintf("/v1/widgets/%s/agreement", w.ID)
	return w.client.do(ctx, "POST", path, reqBody, nil)
}

// RequestPayment invokes the widget's request-payment operation. Success is
// a browser navigation to the success URL, not a callback; an error return
// carries the provider code.
func (w *Widget) RequestPayment(ctx context.Context, req PaymentRequest) error {
	path := fmt.Sprintf("/v1/widgets/%s/payment", w.ID)
	return w.client.do(ctx, "POST", path, req, nil)
}

// UpdateAmount synchronizes the displayed amount. Safe to call repeatedly.
func (h *MethodsHandle) UpdateAmount(ctx context.Context, amount Amount) error {
	path := fmt.Sprintf("/v1/widgets/%s/payment-methods/%s/amount", h.widgetID, h.ID)
	return h.client.do(ctx, "PUT", path, amount, nil)
}

// Mounted reports whether the selector has actually mounted. Mounting is the
// only observable signal that a render with a given configuration worked.
func (h *MethodsHandle) Mounted(ctx context.Context) (bool, error) {
	var resp struct {
		Mounted bool `json:"mounted"`
	}
	path := fmt.Sprintf("/v1/widgets/%s/payment-methods/%s", h.widgetID, h.ID)
	if err := h.client.do(ctx, "GET", path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Mounted, nil
}

// do executes a bridge request and decodes the response or typed error.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal widget request: %w", err)
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create widget request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Key", c.ClientKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute widget request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read widget response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var widgetErr WidgetError
		if err := json.Unmarshal(bodyBytes, &widgetErr); err != nil || widgetErr.Code == "" {
			log.Printf("level=warn component=toss_client method=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
			return fmt.Errorf("widget bridge returned status %d", resp.StatusCode)
		}
		log.Printf("level=warn component=toss_client method=%s path=%s status=%d code=%q message=%q", method, path, resp.StatusCode, widgetErr.Code, widgetErr.Message)
		return &widgetErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode widget response: %w", err)
	}
	return nil
}
