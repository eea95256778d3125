package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridConfig holds SendGrid configuration
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Endpoint overrides the SendGrid URL, used by tests.
	Endpoint string
}

// SendGridClient sends emails via SendGrid API
type SendGridClient struct {
	config     SendGridConfig
	httpClient *http.Client
}

// NewSendGridClient creates a new SendGrid email client
func NewSendGridClient(config SendGridConfig) *SendGridClient {
	if config.Endpoint == "" {
		config.Endpoint = sendGridEndpoint
	}
	return &SendGridClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Message represents an email to send
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTMLContent string
	TextContent string
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers msg. SendGrid requires text/plain before text/html.
func (c *SendGridClient) Send(ctx context.Context, msg *Message) error {
	request := sendGridRequest{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: msg.To, Name: msg.ToName}}},
		},
		From:    sendGridAddress{Email: c.config.FromEmail, Name: c.config.FromName},
		Subject: msg.Subject,
	}
	if msg.TextContent != "" {
		request.Content = append(request.Content, sendGridContent{Type: "text/plain", Value: msg.TextContent})
	}
	if msg.HTMLContent != "" {
		request.Content = append(request.Content, sendGridContent{Type: "text/html", Value: msg.HTMLContent})
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
