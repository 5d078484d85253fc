package mailer

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Config contains credentials and sender identity for outgoing mail.
type Config struct {
	APIKey      string
	FromName    string
	FromAddress string
}

// Service sends transactional mail through Sendgrid. Sends are
// fire-and-forget: delivery failures are logged, never returned.
type Service struct {
	key    string
	from   *sgmail.Email
	logger zerolog.Logger
}

// New constructs a Sendgrid mail service.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.APIKey == "" || cfg.FromAddress == "" {
		return nil, fmt.Errorf("sendgrid api key and from address must be provided")
	}

	return &Service{
		key:    cfg.APIKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger.With().Str("component", "mailer").Logger(),
	}, nil
}

// Send dispatches a plain-text message in the background.
func (s *Service) Send(toName, toAddress, subject, body string) {
	go func() {
		m := sgmail.NewV3Mail()
		m.SetFrom(s.from)

		p := sgmail.NewPersonalization()
		p.Subject = subject
		p.AddTos(sgmail.NewEmail(toName, toAddress))
		m.AddPersonalizations(p)
		m.AddContent(sgmail.NewContent("text/plain", body))

		req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
		req.Method = http.MethodPost
		req.Body = sgmail.GetRequestBody(m)

		res, err := sendgrid.API(req)
		if err != nil {
			s.logger.Error().Err(err).Str("to", toAddress).Msg("failed to send email")
			return
		}
		if res.StatusCode >= http.StatusBadRequest {
			s.logger.Error().Int("status", res.StatusCode).Str("to", toAddress).Msg("email rejected by sendgrid")
		}
	}()
}
