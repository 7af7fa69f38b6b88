package email

import (
	"bytes"
	"context"
	"html/template"
	"sync"

	"github.com/rs/zerolog/log"
)

// Template names
const (
	TemplateWelcome          = "welcome"
	TemplateCreditsPurchased = "credits_purchased"
	TemplateRefundFailed     = "refund_failed"
)

// Config for the email service
type Config struct {
	SendGrid     SendGridConfig
	SupportEmail string
	AppURL       string
	QueueSize    int
}

// Service renders templates and sends them from a background worker.
// Without a SendGrid API key every email is logged and dropped.
type Service struct {
	client       *SendGridClient
	config       Config
	templates    map[string]*template.Template
	baseTemplate *template.Template
	queue        chan *QueuedEmail
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// QueuedEmail represents an email in the send queue
type QueuedEmail struct {
	To           string
	ToName       string
	Subject      string
	TemplateName string
	Data         interface{}
}

// NewService creates email service and starts its worker
func NewService(config Config) *Service {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	s := &Service{
		config:       config,
		templates:    make(map[string]*template.Template),
		baseTemplate: template.Must(template.New("base").Parse(BaseTemplate)),
		queue:        make(chan *QueuedEmail, config.QueueSize),
	}
	if config.SendGrid.APIKey != "" {
		s.client = NewSendGridClient(config.SendGrid)
	}

	for name, content := range map[string]string{
		TemplateWelcome:          WelcomeTemplate,
		TemplateCreditsPurchased: CreditsPurchasedTemplate,
		TemplateRefundFailed:     RefundFailedTemplate,
	} {
		s.templates[name] = template.Must(template.New(name).Parse(content))
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// worker processes queued emails asynchronously
func (s *Service) worker() {
	defer s.wg.Done()

	for email := range s.queue {
		if err := s.send(context.Background(), email); err != nil {
			log.Error().Err(err).
				Str("to", email.To).
				Str("template", email.TemplateName).
				Msg("Failed to send email")
		}
	}
}

// Render produces the final HTML body for a template
func (s *Service) Render(templateName string, data interface{}) (string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", ErrTemplateNotFound
	}

	var contentBuf bytes.Buffer
	if err := tmpl.Execute(&contentBuf, data); err != nil {
		return "", err
	}

	var htmlBuf bytes.Buffer
	if err := s.baseTemplate.Execute(&htmlBuf, map[string]interface{}{
		"Content": template.HTML(contentBuf.String()),
	}); err != nil {
		return "", err
	}
	return htmlBuf.String(), nil
}

func (s *Service) send(ctx context.Context, email *QueuedEmail) error {
	html, err := s.Render(email.TemplateName, email.Data)
	if err != nil {
		return err
	}

	if s.client == nil {
		log.Info().Str("to", email.To).Str("template", email.TemplateName).Msg("Email disabled, dropping")
		return nil
	}

	return s.client.Send(ctx, &EmailMessage{
		To:          email.To,
		ToName:      email.ToName,
		Subject:     email.Subject,
		HTMLContent: html,
	})
}

// Queue adds an email to the async send queue
func (s *Service) Queue(to, toName, templateName, subject string, data interface{}) {
	select {
	case s.queue <- &QueuedEmail{
		To:           to,
		ToName:       toName,
		Subject:      subject,
		TemplateName: templateName,
		Data:         data,
	}:
	default:
		log.Warn().Str("to", to).Str("template", templateName).Msg("Email queue full, dropping email")
	}
}

// SendSync sends an email synchronously (blocking)
func (s *Service) SendSync(ctx context.Context, to, toName, templateName, subject string, data interface{}) error {
	return s.send(ctx, &QueuedEmail{
		To:           to,
		ToName:       toName,
		Subject:      subject,
		TemplateName: templateName,
		Data:         data,
	})
}

// Close drains the queue and stops the worker
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

// --- Convenience methods for specific emails ---

// Receipt is the data of a payment receipt
type Receipt struct {
	OrderID  string
	ItemName string
	Amount   string
	Currency string
	Credits  int64
	Balance  int64
}

// RefundAlert describes a generation whose credit was not returned
type RefundAlert struct {
	UserID       string
	GenerationID string
	RefundKey    string
	Error        string
}

// SendWelcome greets a new user
func (s *Service) SendWelcome(to string, credits int64) {
	s.Queue(to, "", TemplateWelcome, "Welcome to Pawtrait", map[string]interface{}{
		"Credits": credits,
		"AppURL":  s.config.AppURL,
	})
}

// SendCreditsPurchased sends the payment receipt
func (s *Service) SendCreditsPurchased(to string, r Receipt) {
	s.Queue(to, "", TemplateCreditsPurchased, "Your Pawtrait receipt", map[string]interface{}{
		"OrderID":  r.OrderID,
		"ItemName": r.ItemName,
		"Amount":   r.Amount,
		"Currency": r.Currency,
		"Credits":  r.Credits,
		"Balance":  r.Balance,
		"AppURL":   s.config.AppURL,
	})
}

// SendRefundFailed alerts support. Dropped when no support address is set.
func (s *Service) SendRefundFailed(a RefundAlert) {
	if s.config.SupportEmail == "" {
		log.Warn().Str("generation_id", a.GenerationID).Msg("No support email configured for refund alert")
		return
	}
	s.Queue(s.config.SupportEmail, "Support", TemplateRefundFailed, "Refund failed for generation "+a.GenerationID, a)
}
