package mail

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	gomail "github.com/wneessen/go-mail"

	"github.com/seaward/tidereport/internal/report"
)

const subject = "Daily Tide Report"

// Settings carries the SMTP server configuration for one delivery run.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// Compose builds a single message from a rendered report: plain-text
// body, HTML alternative, and the logo plus per-station map images
// embedded inline under the cids the HTML references.
func Compose(rep *report.Report) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, rep.PlainText)
	msg.AddAlternativeString(gomail.TypeTextHTML, rep.HTML)

	if err := embedImage(msg, "logo.png", rep.Logo.Bytes, rep.Logo.ContentID); err != nil {
		return nil, err
	}

	for _, station := range rep.Stations {
		if !station.HasImage() {
			continue
		}
		name := fmt.Sprintf("map-%s.png", station.ExternalID)
		if err := embedImage(msg, name, station.MapImage.Bytes, station.MapImage.ContentID); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

func embedImage(msg *gomail.Msg, name string, data []byte, contentID string) error {
	err := msg.EmbedReader(name, bytes.NewReader(data),
		gomail.WithFileContentID(strings.Trim(contentID, "<>")))
	if err != nil {
		return fmt.Errorf("embedding %s: %w", name, err)
	}
	return nil
}

// Send delivers the message to each recipient over STARTTLS, one
// envelope per address so recipients never see each other.
func Send(ctx context.Context, msg *gomail.Msg, recipients []string, settings Settings) error {
	client, err := gomail.NewClient(settings.Host,
		gomail.WithPort(settings.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(settings.Username),
		gomail.WithPassword(settings.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}

	if err := msg.From(settings.Sender); err != nil {
		return fmt.Errorf("setting sender %s: %w", settings.Sender, err)
	}

	for _, address := range recipients {
		if err := msg.To(address); err != nil {
			return fmt.Errorf("setting recipient %s: %w", address, err)
		}
		if err := client.DialAndSendWithContext(ctx, msg); err != nil {
			return fmt.Errorf("sending to %s: %w", address, err)
		}
		log.Info().Str("recipient", address).Msg("Report sent")
	}

	return nil
}
