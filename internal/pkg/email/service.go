package email

import (
	"bytes"
	"context"
	"html/template"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	TemplatePayoutSent        = "payout_sent"
	TemplatePayoutFailed      = "payout_failed"
	TemplateGiftCardDelivered = "gift_card_delivered"
	TemplateGiftCardFailed    = "gift_card_failed"
)

type sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Service renders templates and sends them from a background queue.
type Service struct {
	client       sender
	templates    map[string]*template.Template
	baseTemplate *template.Template
	queue        chan *QueuedEmail
	wg           sync.WaitGroup
}

// QueuedEmail represents an email in the send queue
type QueuedEmail struct {
	To           string
	ToName       string
	Subject      string
	TemplateName string
	Data         interface{}
}

// NewService returns nil when no API key is configured; a nil Service
// drops everything it is given.
func NewService(config SendGridConfig) *Service {
	if config.APIKey == "" {
		log.Warn().Msg("SENDGRID_API_KEY not set, beneficiary emails disabled")
		return nil
	}
	return newService(NewSendGridClient(config))
}

func newService(client sender) *Service {
	s := &Service{
		client:    client,
		templates: make(map[string]*template.Template),
		queue:     make(chan *QueuedEmail, 100),
	}
	s.baseTemplate = template.Must(template.New("base").Parse(BaseTemplate))
	s.loadTemplates()

	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *Service) loadTemplates() {
	templates := map[string]string{
		TemplatePayoutSent:        PayoutSentTemplate,
		TemplatePayoutFailed:      PayoutFailedTemplate,
		TemplateGiftCardDelivered: GiftCardDeliveredTemplate,
		TemplateGiftCardFailed:    GiftCardFailedTemplate,
	}
	for name, content := range templates {
		s.templates[name] = template.Must(template.New(name).Parse(content))
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for email := range s.queue {
		if err := s.send(context.Background(), email); err != nil {
			log.Error().Err(err).
				Str("template", email.TemplateName).
				Msg("Failed to send email")
		}
	}
}

func (s *Service) send(ctx context.Context, email *QueuedEmail) error {
	tmpl, ok := s.templates[email.TemplateName]
	if !ok {
		log.Warn().Str("template", email.TemplateName).Msg("Template not found")
		return nil
	}

	var contentBuf bytes.Buffer
	if err := tmpl.Execute(&contentBuf, email.Data); err != nil {
		return err
	}

	var htmlBuf bytes.Buffer
	if err := s.baseTemplate.Execute(&htmlBuf, map[string]interface{}{
		"Content": template.HTML(contentBuf.String()),
	}); err != nil {
		return err
	}

	return s.client.Send(ctx, &Message{
		To:          email.To,
		ToName:      email.ToName,
		Subject:     email.Subject,
		HTMLContent: htmlBuf.String(),
	})
}

// Queue adds an email to the async send queue. It never blocks.
func (s *Service) Queue(to, toName, templateName, subject string, data interface{}) {
	if s == nil || to == "" {
		return
	}
	select {
	case s.queue <- &QueuedEmail{
		To:           to,
		ToName:       toName,
		Subject:      subject,
		TemplateName: templateName,
		Data:         data,
	}:
	default:
		log.Warn().Str("template", templateName).Msg("Email queue full, dropping email")
	}
}

// Close drains the queue and stops the worker.
func (s *Service) Close() {
	if s == nil {
		return
	}
	close(s.queue)
	s.wg.Wait()
}
