package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	subjectFulfilled = "Your lead export is on its way"
	subjectFailed    = "Paid order could not be fulfilled: %s"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier mails the customer when a run starts and the operator when a
// paid order could not be handed to the actor.
type EmailNotifier struct {
	client   mailSender
	from     *mail.Email
	operator string
	sandbox  bool
}

func NewEmailNotifier(apiKey, fromEmail, operatorEmail string, sandbox bool) *EmailNotifier {
	return &EmailNotifier{
		client:   sendgrid.NewSendClient(apiKey),
		from:     mail.NewEmail("Leadflow", fromEmail),
		operator: operatorEmail,
		sandbox:  sandbox,
	}
}

func (e *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	var (
		to               *mail.Email
		subject          string
		plainTextContent string
	)
	switch msg.Kind {
	case KindFulfilled:
		if msg.ContactAddress == "" {
			return nil
		}
		to = mail.NewEmail("", msg.ContactAddress)
		subject = subjectFulfilled
		plainTextContent = fmt.Sprintf(
			"Thanks for your order. We started collecting %d leads from:\n%s\n\nThe file will be delivered as %s once the run completes.",
			msg.RequestedVolume, msg.DestinationURL, msg.FileName,
		)
	case KindFailed:
		if e.operator == "" {
			return nil
		}
		to = mail.NewEmail("Operator", e.operator)
		subject = fmt.Sprintf(subjectFailed, msg.SessionID)
		plainTextContent = fmt.Sprintf(
			"Checkout session %s was paid but fulfillment stopped.\nReason: %s\nContact: %s\nLeads: %d\nURL: %s",
			msg.SessionID, msg.Reason, msg.ContactAddress, msg.RequestedVolume, msg.DestinationURL,
		)
	default:
		return fmt.Errorf("unknown notification kind %q", msg.Kind)
	}

	htmlContent := "<p>" + strings.ReplaceAll(html.EscapeString(plainTextContent), "\n", "<br>") + "</p>"
	m := mail.NewSingleEmail(e.from, subject, to, plainTextContent, htmlContent)
	if e.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		m.MailSettings = ms
	}
	resp, err := e.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
