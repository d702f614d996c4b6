// Package emailsvc provides the email relays.
package emailsvc

import (
	"fmt"

	"github.com/trezcool/aula/core"
)

// New builds the email service selected by conf.Email.Backend.
func New(conf *core.Config, logger core.Logger) (core.EmailService, error) {
	switch conf.Email.Backend {
	case "console", "":
		return NewConsoleService(conf, logger), nil
	case "smtp":
		return NewSMTPService(conf, logger), nil
	case "sendgrid":
		return NewSendgridService(conf, logger), nil
	}
	return nil, fmt.Errorf("unknown email backend %q", conf.Email.Backend)
}
