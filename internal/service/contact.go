// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mileusna/useragent"
	"github.com/yuin/goldmark"

	"github.com/olegiv/dwc-go/internal/logging"
	"github.com/olegiv/dwc-go/internal/mail"
	"github.com/olegiv/dwc-go/internal/model"
)

// Mailer delivers one email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// CountryLookup resolves an IP to an ISO country code, or "" when unknown.
type CountryLookup interface {
	LookupCountry(ip string) string
}

// ContactServiceOptions configures NewContactService.
type ContactServiceOptions struct {
	Mailer  Mailer
	GeoIP   CountryLookup // optional
	From    string
	To      string
	Logger  *slog.Logger
	Metrics Metrics
}

// ContactService validates contact form submissions and forwards them by email.
type ContactService struct {
	mailer   Mailer
	geo      CountryLookup
	from     string
	to       []string
	validate *validator.Validate
	markdown goldmark.Markdown
	logger   *slog.Logger
	metrics  Metrics
}

// NewContactService creates a ContactService.
func NewContactService(opts ContactServiceOptions) *ContactService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	var to []string
	for _, addr := range strings.Split(opts.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	return &ContactService{
		mailer:   opts.Mailer,
		geo:      opts.GeoIP,
		from:     opts.From,
		to:       to,
		validate: v,
		markdown: goldmark.New(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Validate trims msg in place and checks every field.
func (s *ContactService) Validate(msg *model.ContactMessage) error {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Subject = strings.Join(strings.Fields(msg.Subject), " ")
	msg.Message = strings.TrimSpace(msg.Message)

	err := s.validate.Struct(msg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating contact message: %w", err)
	}

	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			ve.Add(fe.Field(), "is required")
		case "email":
			ve.Add(fe.Field(), "must be a valid email address")
		case "max":
			ve.Add(fe.Field(), "must be at most "+fe.Param()+" characters")
		default:
			ve.Add(fe.Field(), "is invalid")
		}
	}
	return ve
}

// Send validates msg and emails it to the site inbox with the sender as
// reply-to. It returns the provider message id.
func (s *ContactService) Send(ctx context.Context, msg model.ContactMessage, sender model.SenderInfo) (id string, err error) {
	if err := s.Validate(&msg); err != nil {
		return "", err
	}
	defer func() { s.metrics.ContactSent(err == nil) }()

	html, err := s.renderHTML(msg, sender)
	if err != nil {
		return "", err
	}

	id, err = s.mailer.Send(ctx, mail.Message{
		From:    s.from,
		To:      s.to,
		Subject: "New Contact Form Submission: " + msg.Subject,
		HTML:    html,
		Text:    renderText(msg, sender),
		ReplyTo: msg.Email,
	})
	if err != nil {
		s.logger.Error("contact email failed", "error", err, "category", logging.CategoryMail)
		return "", fmt.Errorf("sending contact email: %w", err)
	}

	s.logger.Info("contact email sent", "id", id, "country", sender.Country)
	return id, nil
}

// DescribeSender summarizes the request origin for the email footer.
func (s *ContactService) DescribeSender(ip, userAgent string) model.SenderInfo {
	info := model.SenderInfo{IP: ip, UserAgent: userAgent}

	if userAgent != "" {
		ua := useragent.Parse(userAgent)
		info.Browser = ua.Name
		info.OS = ua.OS
		switch {
		case ua.Mobile:
			info.Device = "mobile"
		case ua.Tablet:
			info.Device = "tablet"
		case ua.Bot:
			info.Device = "bot"
		default:
			info.Device = "desktop"
		}
	}
	if s.geo != nil && ip != "" {
		info.Country = s.geo.LookupCountry(ip)
	}
	return info
}

var contactEmailTmpl = template.Must(template.New("contact").Parse(`<div style="font-family:Arial,sans-serif;color:#111">
<h2>New contact form submission</h2>
<p><strong>Name:</strong> {{.Msg.Name}}<br>
<strong>Email:</strong> <a href="mailto:{{.Msg.Email}}">{{.Msg.Email}}</a><br>
<strong>Subject:</strong> {{.Msg.Subject}}</p>
<hr>
{{.Body}}
{{- if .Sender.Browser}}
<hr>
<p style="color:#666;font-size:12px">Sent from {{.Sender.Browser}} on {{.Sender.OS}} ({{.Sender.Device}}){{if .Sender.Country}}, country {{.Sender.Country}}{{end}}</p>
{{- end}}
</div>`))

// renderHTML converts the message body from Markdown. Raw HTML in the body
// is omitted by goldmark's default renderer and the output is sanitized.
func (s *ContactService) renderHTML(msg model.ContactMessage, sender model.SenderInfo) (string, error) {
	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(msg.Message), &body); err != nil {
		return "", fmt.Errorf("rendering message: %w", err)
	}

	var out bytes.Buffer
	err := contactEmailTmpl.Execute(&out, struct {
		Msg    model.ContactMessage
		Body   template.HTML
		Sender model.SenderInfo
	}{
		Msg:    msg,
		Body:   template.HTML(SanitizeContent(body.String())), //nolint:gosec // sanitized above
		Sender: sender,
	})
	if err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return out.String(), nil
}

func renderText(msg model.ContactMessage, sender model.SenderInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\nSubject: %s\n\n%s\n", msg.Name, msg.Email, msg.Subject, msg.Message)
	if sender.Browser != "" {
		fmt.Fprintf(&b, "\n--\nSent from %s on %s (%s)", sender.Browser, sender.OS, sender.Device)
		if sender.Country != "" {
			fmt.Fprintf(&b, ", country %s", sender.Country)
		}
		b.WriteString("\n")
	}
	return b.String()
}
