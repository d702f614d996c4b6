package emailsvc

import (
	"encoding/base64"
	"io"
	"net/mail"

	"github.com/pkg/errors"
	gomail "gopkg.in/mail.v2"

	"github.com/trezcool/aula/core"
)

// newMessage assembles msg as HTML with a text alternative, plus its attachments.
// Bcc recipients are addressed but never written to the headers.
func newMessage(from mail.Address, subjPrefix string, msg core.EmailMessage) (*gomail.Message, error) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	m.SetHeader("Subject", subjPrefix+msg.Subject)
	m.SetDateHeader("Date", core.NowFunc())
	for header, addrs := range map[string][]mail.Address{"To": msg.To, "Cc": msg.Cc, "Bcc": msg.Bcc} {
		if len(addrs) == 0 {
			continue
		}
		formatted := make([]string, 0, len(addrs))
		for _, a := range addrs {
			formatted = append(formatted, m.FormatAddress(a.Address, a.Name))
		}
		m.SetHeader(header, formatted...)
	}

	switch {
	case msg.TextContent != "":
		m.SetBody("text/plain", msg.TextContent)
		if msg.HTMLContent != "" {
			m.AddAlternative("text/html", msg.HTMLContent)
		}
	case msg.HTMLContent != "":
		m.SetBody("text/html", msg.HTMLContent)
	}

	for _, at := range msg.Attachments {
		data, err := base64.StdEncoding.DecodeString(at.Content.String())
		if err != nil {
			return nil, errors.Wrapf(err, "decoding attachment %q", at.Filename)
		}
		m.Attach(at.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {at.ContentType}}),
		)
	}
	return m, nil
}
