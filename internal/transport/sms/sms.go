package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/transport"
	"github.com/repairhub/notify/pkg/circuitbreaker"
	apperrors "github.com/repairhub/notify/pkg/errors"
)

type Config struct {
	BaseURL     string `envconfig:"SMS_BASE_URL"`
	APIKey      string `envconfig:"SMS_API_KEY"`
	Sender      string `envconfig:"SMS_SENDER"`
	MaxBodyLen  int
	CallTimeout time.Duration
}

// Adapter talks to an HTTP SMS gateway. Bodies longer than the provider's
// character limit are truncated here, not upstream, because the limit is a
// property of the medium.
type Adapter struct {
	baseURL    string
	apiKey     string
	sender     string
	maxBodyLen int
	client     *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

// e164 is the destination format the gateway accepts.
var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

func NewAdapter(cfg Config) *Adapter {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxLen := cfg.MaxBodyLen
	if maxLen <= 0 {
		maxLen = 160
	}
	return &Adapter{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		sender:     cfg.Sender,
		maxBodyLen: maxLen,
		client:     &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sms-gateway",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (a *Adapter) Channel() model.Channel {
	return model.ChannelSMS
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	CostCents int    `json:"cost_cents"`
}

func (a *Adapter) Send(ctx context.Context, destination, _ string, body string) (*transport.SendResult, error) {
	if !e164.MatchString(destination) {
		return nil, apperrors.NewPermanent("invalid_number",
			apperrors.NewInvalidDestination("sms", destination))
	}

	var result *transport.SendResult
	err := a.cb.Execute(func() error {
		var err error
		result, err = a.post(ctx, destination, Truncate(body, a.maxBodyLen))
		return err
	})
	if err != nil {
		var openErr *circuitbreaker.ErrOpen
		if errors.As(err, &openErr) {
			return nil, apperrors.NewTransient("circuit_open", err)
		}
		return nil, err
	}
	return result, nil
}

func (a *Adapter) post(ctx context.Context, destination, body string) (*transport.SendResult, error) {
	payload, err := json.Marshal(sendRequest{To: destination, From: a.sender, Body: body})
	if err != nil {
		return nil, apperrors.NewPermanent("marshal_failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewPermanent("bad_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperrors.NewTransient("timeout", err)
		}
		return nil, apperrors.NewTransient("network_error", err)
	}
	defer resp.Body.Close()

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil && resp.StatusCode < 300 {
		return nil, apperrors.NewTransient("bad_response", err)
	}

	switch {
	case resp.StatusCode < 300:
		return &transport.SendResult{
			ProviderMessageID: sr.MessageID,
			CostCents:         sr.CostCents,
		}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewTransient("throttled", fmt.Errorf("gateway throttled: %s", sr.Message))
	case resp.StatusCode >= 500:
		return nil, apperrors.NewTransient(providerCode(sr, resp.StatusCode),
			fmt.Errorf("gateway unavailable: %s", sr.Message))
	default:
		return nil, classifyClientError(sr, resp.StatusCode)
	}
}

// classifyClientError maps gateway 4xx codes: bad or opted-out numbers will
// never succeed, anything unrecognized is treated permanent too since the
// request itself was rejected.
func classifyClientError(sr sendResponse, status int) error {
	code := providerCode(sr, status)
	switch sr.ErrorCode {
	case "invalid_number", "unroutable":
		return apperrors.NewPermanent(code, fmt.Errorf("gateway rejected number: %s", sr.Message))
	case "opted_out", "blocked":
		return apperrors.NewBounce(code, fmt.Errorf("recipient opted out: %s", sr.Message))
	}
	return apperrors.NewPermanent(code, fmt.Errorf("gateway rejected request (%d): %s", status, sr.Message))
}

func providerCode(sr sendResponse, status int) string {
	if sr.ErrorCode != "" {
		return sr.ErrorCode
	}
	return fmt.Sprintf("http_%d", status)
}

// Truncate cuts body to max runes, reserving one for an ellipsis when the
// text is cut. Counting runes, not bytes, keeps multibyte text intact.
func Truncate(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max < 1 {
		return ""
	}
	return string(runes[:max-1]) + "…"
}
