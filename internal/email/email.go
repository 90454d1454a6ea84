// Package email delivers transactional mail through SendGrid.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/laviou/backend/internal/logger"
)

const (
	sendURL        = "https://api.sendgrid.com/v3/mail/send"
	requestTimeout = 10 * time.Second
)

// Notifier sends a one-time password reset code to an address.
type Notifier interface {
	SendPasswordResetOTP(ctx context.Context, to, otp string) error
}

// SendGrid implements Notifier against the SendGrid v3 API. When the API is
// not configured or delivery fails outside production, the code is surfaced
// through the log instead of failing the request, so local testing never
// blocks on email delivery.
type SendGrid struct {
	apiKey     string
	from       string
	production bool
	httpClient *http.Client
	log        *logger.Logger
}

func NewSendGrid(apiKey, from string, production bool) *SendGrid {
	return &SendGrid{
		apiKey:     apiKey,
		from:       from,
		production: production,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        logger.Default().WithComponent("email"),
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridMessage struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

func (s *SendGrid) SendPasswordResetOTP(ctx context.Context, to, otp string) error {
	if s.apiKey == "" || s.from == "" {
		if !s.production {
			s.log.Warn(ctx, "sendgrid not configured, surfacing OTP locally", map[string]interface{}{
				"to":  to,
				"otp": otp,
			})
			return nil
		}
		return fmt.Errorf("sendgrid is not configured")
	}

	if err := s.send(ctx, to, otp); err != nil {
		if !s.production {
			s.log.Error(ctx, "sendgrid delivery failed, surfacing OTP locally", err, map[string]interface{}{
				"to":  to,
				"otp": otp,
			})
			return nil
		}
		return err
	}
	return nil
}

func (s *SendGrid) send(ctx context.Context, to, otp string) error {
	msg := sendGridMessage{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: to}}},
		},
		From:    sendGridAddress{Email: s.from},
		Subject: "Your Laviou password reset code",
		Content: []sendGridContent{
			{
				Type:  "text/plain",
				Value: fmt.Sprintf("Your password reset code is: %s\n\nThis code expires in 10 minutes.", otp),
			},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
