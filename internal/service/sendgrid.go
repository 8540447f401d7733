package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultSendGridURL = "https://api.sendgrid.com/v3/mail/send"

var ErrRateLimited = errors.New("mail provider rate limit exceeded")

// SendGridClient delivers mail through the SendGrid v3 HTTP API.
type SendGridClient struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

func NewSendGridClient(url, apiKey, from string) *SendGridClient {
	if url == "" {
		url = DefaultSendGridURL
	}
	return &SendGridClient{
		url:    url,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type,omitempty"`
	Disposition string `json:"disposition"`
}

type sgMessage struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	Attachments      []sgAttachment      `json:"attachments,omitempty"`
}

func (c *SendGridClient) Send(ctx context.Context, m Mail) error {
	msg := sgMessage{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: m.To}}}},
		From:             sgAddress{Email: c.from},
		Subject:          m.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: m.Body}},
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, sgAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Filename:    a.Filename,
			Type:        a.ContentType,
			Disposition: "attachment",
		})
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(body))
	}
}
