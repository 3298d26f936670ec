package whatsappclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

const (
	defaultBaseURL      = "https://graph.facebook.com"
	defaultGraphVersion = "v22.0"
	defaultUserAgent    = "whatsapp-concierge/0.1"
	signaturePrefix     = "sha256="
)

// Config controls how the Cloud API client behaves.
type Config struct {
	Token        string
	GraphVersion string
	BaseURL      string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
	UserAgent    string
}

// Client wraps the WhatsApp Cloud API endpoints used to answer users.
type Client struct {
	token      string
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("whatsappclient: access token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	version := strings.Trim(strings.TrimSpace(cfg.GraphVersion), "/")
	if version == "" {
		version = defaultGraphVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		version:    version,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// SendText delivers a plain text message from the business phone number
// phoneNumberID to the WhatsApp user to. The call is made exactly once.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body string) (*SendResponse, error) {
	req := sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	req.Text.Body = body
	if err := req.validate(phoneNumberID); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsappclient: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/"+strings.TrimSpace(phoneNumberID)+"/messages", payload)
	if err != nil {
		return nil, err
	}
	var resp SendResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whatsappclient: decode response: %w", err)
	}
	return &resp, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + "/" + c.version + path
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("whatsappclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("whatsappclient: http error: %w", err)
	}
	data, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("whatsappclient: read response: %w", readErr)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	apiErr := decodeAPIError(resp.StatusCode, data)
	c.logger.Warn("graph api request failed",
		"path", path,
		"status", resp.StatusCode,
		"code", apiErr.Code,
		"error", apiErr.Message,
	)
	return nil, apiErr
}

// APIError is a non-2xx Graph API response.
type APIError struct {
	StatusCode int
	Body       string
	Message    string
	Type       string
	Code       int
	TraceID    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsappclient: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsappclient: http status %d", e.StatusCode)
}

// ResponseBody returns the raw response body of the failed call.
func (e *APIError) ResponseBody() string { return e.Body }

// HTTPStatus returns the response status code of the failed call.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var parsed graphErrorEnvelope
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
		apiErr.Code = parsed.Error.Code
		apiErr.TraceID = parsed.Error.FBTraceID
	}
	return apiErr
}

// VerifySignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against the HMAC-SHA256 of payload keyed with the app secret.
func VerifySignature(secret, header string, payload []byte) error {
	if secret == "" {
		return errors.New("whatsappclient: app secret not configured")
	}
	sig := strings.TrimSpace(header)
	if sig == "" {
		return errors.New("whatsappclient: missing signature header")
	}
	if !strings.HasPrefix(strings.ToLower(sig), signaturePrefix) {
		return errors.New("whatsappclient: malformed signature header")
	}
	actual := strings.ToLower(sig[len(signaturePrefix):])
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("whatsappclient: signature mismatch")
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 header value for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
