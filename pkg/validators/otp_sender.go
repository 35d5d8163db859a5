package validators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/httpclient"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
)

// ErrOTPDeliveryDisabled is returned when no SMS gateway is configured.
var ErrOTPDeliveryDisabled = errors.New("otp delivery is not configured")

// WebhookOTPSender posts the code to an SMS gateway webhook as
// {"to": "<e164>", "code": "<code>"}.
type WebhookOTPSender struct {
	url    string
	client *httpclient.Client
	logger ectologger.Logger
}

// NewWebhookOTPSender returns a sender for url. An empty url yields a sender
// that always fails with ErrOTPDeliveryDisabled.
func NewWebhookOTPSender(url string, client *httpclient.Client, logger ectologger.Logger) *WebhookOTPSender {
	return &WebhookOTPSender{url: url, client: client, logger: logger}
}

type otpMessage struct {
	To   string `json:"to"`
	Code string `json:"code"`
}

func (s *WebhookOTPSender) SendOTP(ctx context.Context, e164, code string) error {
	if s.url == "" {
		return ErrOTPDeliveryDisabled
	}

	body, err := json.Marshal(otpMessage{To: e164, Code: code})
	if err != nil {
		return fmt.Errorf("failed to encode otp message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordExternalLookup("otp_webhook", "error", elapsed)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordExternalLookup("otp_webhook", "error", elapsed)
		return &httpclient.StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
	}

	metrics.RecordExternalLookup("otp_webhook", "ok", elapsed)
	return nil
}
