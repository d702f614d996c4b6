package emailsvc

import (
	"fmt"
	"net/mail"

	"github.com/pkg/errors"
	gomail "gopkg.in/mail.v2"

	"github.com/trezcool/aula/core"
)

type smtpService struct {
	from       mail.Address
	subjPrefix string
	logger     core.Logger
	send       func(m ...*gomail.Message) error // mockable
}

var _ core.EmailService = (*smtpService)(nil)

// NewSMTPService relays messages to an SMTP server, upgrading to TLS when the server offers it.
func NewSMTPService(conf *core.Config, logger core.Logger) core.EmailService {
	dialer := gomail.NewDialer(conf.Email.SMTPHost, conf.Email.SMTPPort, conf.Email.SMTPUser, conf.Email.SMTPPassword)
	return &smtpService{
		from:       conf.DefaultFromEmail,
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
		send:       dialer.DialAndSend,
	}
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.relay(msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
			}
		}()
	}
}

func (svc smtpService) relay(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return nil
	}

	m, err := newMessage(svc.from, svc.subjPrefix, *msg)
	if err != nil {
		return err
	}
	if err = svc.send(m); err != nil {
		return core.NewExternalError("smtp", err)
	}
	return nil
}
