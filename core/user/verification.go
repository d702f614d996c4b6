package user

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
)

var (
	ErrInvalidCode = errors.New("invalid or expired verification code")

	verificationTemplate = "verification_code"
)

// VerificationEmailData is rendered by the verification code email templates.
type VerificationEmailData struct {
	Name       string
	Code       string
	TTLMinutes int
}

func (svc *Service) generateCode() (string, error) {
	var b strings.Builder
	for i := 0; i < svc.codeLen; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// RequestVerificationCode emails a single-use code to the owner of email.
// Unknown or deactivated accounts are ignored silently.
func (svc *Service) RequestVerificationCode(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive {
		return nil
	}

	code, err := svc.generateCode()
	if err != nil {
		return errors.Wrap(err, "generating verification code")
	}
	svc.codes.SetDefault(usr.Email, code)

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Código de verificación",
		TemplateName: verificationTemplate,
		TemplateData: VerificationEmailData{
			Name:       usr.Name,
			Code:       code,
			TTLMinutes: int(svc.codeTTL.Minutes()),
		},
	})
	return nil
}

// consumeCode checks code against the one issued to email; a matching code is deleted.
func (svc *Service) consumeCode(email, code string) error {
	stored, ok := svc.codes.Get(email)
	if !ok {
		return ErrInvalidCode
	}
	if s, _ := stored.(string); subtle.ConstantTimeCompare([]byte(s), []byte(code)) == 0 {
		return ErrInvalidCode
	}
	svc.codes.Delete(email)
	return nil
}

// ResetPasswordWithCode sets a new password once the emailed code is verified.
func (svc *Service) ResetPasswordWithCode(ctx context.Context, rp ResetPassword) error {
	if err := svc.consumeCode(rp.Email, rp.Code); err != nil {
		return core.NewFieldError(err, "code")
	}

	usr, err := svc.GetByEmail(ctx, rp.Email)
	if err != nil {
		if err == ErrNotFound {
			return core.NewFieldError(ErrInvalidCode, "code")
		}
		return errors.Wrap(err, "finding user by email")
	}
	usr.FirstLogin = false
	if _, err := svc.SetPassword(ctx, usr, rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	return nil
}
