package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/transport"
	"github.com/repairhub/notify/pkg/circuitbreaker"
	apperrors "github.com/repairhub/notify/pkg/errors"
)

type Config struct {
	Host        string `envconfig:"SMTP_HOST"`
	Port        int    `envconfig:"SMTP_PORT" default:"587"`
	Username    string `envconfig:"SMTP_USERNAME"`
	Password    string `envconfig:"SMTP_PASSWORD"`
	From        string `envconfig:"SMTP_FROM"`
	CallTimeout time.Duration
}

// Adapter sends email over SMTP. The SMTP conversation has no context
// plumbing, so the call timeout is enforced around the dial-and-send.
type Adapter struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
	cb      *circuitbreaker.CircuitBreaker
}

func NewAdapter(cfg Config) *Adapter {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		timeout: timeout,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (a *Adapter) Channel() model.Channel {
	return model.ChannelEmail
}

func (a *Adapter) Send(ctx context.Context, destination, subject, body string) (*transport.SendResult, error) {
	if _, err := mail.ParseAddress(destination); err != nil {
		return nil, apperrors.NewPermanent("invalid_address",
			apperrors.NewInvalidDestination("email", destination))
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", a.from)
	msg.SetHeader("To", destination)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	// Message-ID doubles as the idempotent provider reference; SMTP gives
	// us nothing better back on success.
	messageID := fmt.Sprintf("<%s@repairhub>", uuid.New().String())
	msg.SetHeader("Message-ID", messageID)

	err := a.cb.Execute(func() error {
		return a.sendWithTimeout(ctx, msg)
	})
	if err != nil {
		return nil, classify(err)
	}

	return &transport.SendResult{ProviderMessageID: messageID}, nil
}

func (a *Adapter) sendWithTimeout(ctx context.Context, msg *gomail.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- a.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(a.timeout):
		return fmt.Errorf("smtp send timed out after %s", a.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps SMTP failures onto the retry taxonomy. Permanent 5xx reply
// codes about the mailbox mean a bounce; everything else on the wire is
// worth retrying.
func classify(err error) error {
	var openErr *circuitbreaker.ErrOpen
	if errors.As(err, &openErr) {
		return apperrors.NewTransient("circuit_open", err)
	}

	msg := err.Error()
	for _, code := range []string{"550", "551", "553"} {
		if strings.Contains(msg, code) {
			return apperrors.NewBounce("smtp_"+code, err)
		}
	}
	if strings.Contains(msg, "554") {
		return apperrors.NewPermanent("smtp_554", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTransient("timeout", err)
	}
	return apperrors.NewTransient("smtp_error", err)
}
