package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"motion-akademija-billing/internal/config"
	"motion-akademija-billing/internal/domain/ports/adapter"
)

var _ adapter.Mailer = (*SMTPMailer)(nil)

// SMTPMailer delivers transactional mail over plain SMTP. Sends are
// best-effort by contract; callers log failures and move on.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, email, plaintextPassword, firstName string) error {
	subject := "Dobrodošli na Motion Akademiju"
	body := fmt.Sprintf(`Zdravo %s,

Vaš nalog je uspešno kreiran.

Email: %s
Lozinka: %s

Preporučujemo da promenite lozinku nakon prve prijave.

Motion Akademija`, firstName, email, plaintextPassword)
	return m.send(email, subject, body)
}

func (m *SMTPMailer) SendRenewalEmail(ctx context.Context, email, firstName string, newExpiry time.Time, amount float64) error {
	subject := "Pretplata je produžena"
	body := fmt.Sprintf(`Zdravo %s,

Vaša pretplata je automatski produžena.

Naplaćeno: %.2f RSD
Važi do: %s

Motion Akademija`, firstName, amount, newExpiry.Format("02.01.2006"))
	return m.send(email, subject, body)
}

func (m *SMTPMailer) SendPaymentFailedEmail(ctx context.Context, email, firstName string) error {
	subject := "Naplata pretplate nije uspela"
	body := fmt.Sprintf(`Zdravo %s,

Automatska naplata vaše pretplate nije uspela i automatsko produžavanje je
pauzirano. Pristup možete obnoviti na stranici za produžavanje.

Motion Akademija`, firstName)
	return m.send(email, subject, body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	msg := []byte("Subject: " + subject + "\r\n" +
		"From: " + m.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body + "\r\n")
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}
