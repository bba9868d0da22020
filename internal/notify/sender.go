package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
)

const defaultBrevoURL = "https://api.brevo.com"

// Каналы доставки
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message письмо или SMS с одноразовым кодом. Пустой Channel означает email.
type Message struct {
	Channel string
	To      string
	Subject string
	Body    string
	Code    string
}

// IsSMS сообщает, что сообщение уходит по SMS.
func (m Message) IsSMS() bool {
	return m.Channel == ChannelSMS
}

// Sender отправляет коды подтверждения пользователю.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender пишет письма в лог вместо отправки. Используется в development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	channel := ChannelEmail
	if msg.IsSMS() {
		channel = ChannelSMS
	}
	logger.Log.WithFields(logrus.Fields{
		"channel": channel,
		"to":      msg.To,
		"subject": msg.Subject,
		"code":    msg.Code,
	}).Info("notify: сообщение не отправлено, вывод в лог")
	return nil
}

// smsSenderMaxLen ограничение Brevo на буквенное имя отправителя SMS.
const smsSenderMaxLen = 11

// BrevoSender отправляет транзакционные письма и SMS через Brevo API.
type BrevoSender struct {
	baseURL     string
	apiKey      string
	senderEmail string
	senderName  string
	smsSender   string
	client      *http.Client
}

// NewBrevoSender создаёт отправителя. Пустой baseURL означает боевой API.
func NewBrevoSender(baseURL, apiKey, senderEmail, senderName string) *BrevoSender {
	if baseURL == "" {
		baseURL = defaultBrevoURL
	}
	return &BrevoSender{
		baseURL:     baseURL,
		apiKey:      apiKey,
		senderEmail: senderEmail,
		senderName:  senderName,
		smsSender:   smsSenderName(senderName),
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent"`
}

type brevoSMS struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Type      string `json:"type"`
}

func (s *BrevoSender) Send(ctx context.Context, msg Message) error {
	if msg.IsSMS() {
		return s.post(ctx, "/v3/transactionalSMS/sms", brevoSMS{
			Sender:    s.smsSender,
			Recipient: strings.TrimPrefix(msg.To, "+"),
			Content:   msg.Body,
			Type:      "transactional",
		})
	}
	return s.post(ctx, "/v3/smtp/email", brevoEmail{
		Sender:      brevoContact{Email: s.senderEmail, Name: s.senderName},
		To:          []brevoContact{{Email: msg.To}},
		Subject:     msg.Subject,
		TextContent: msg.Body,
	})
}

func (s *BrevoSender) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("brevo: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// smsSenderName оставляет буквы и цифры имени отправителя, не длиннее 11 символов.
func smsSenderName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if b.Len() >= smsSenderMaxLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Errands"
	}
	return b.String()
}
