package delivery

import (
	"context"
	"errors"
	"fmt"

	goOTP "github.com/MrEthical07/goOTP"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/mrz1836/postmark"
)

// PostmarkConfig configures the Postmark sender.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
}

func (c PostmarkConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServerToken, validation.Required),
		validation.Field(&c.From, validation.Required, is.Email),
		validation.Field(&c.ReplyTo, is.Email),
	)
}

// Postmark delivers codes through the Postmark transactional API.
type Postmark struct {
	client   *postmark.Client
	config   PostmarkConfig
	renderer Renderer
}

func NewPostmark(cfg PostmarkConfig, renderer Renderer) (*Postmark, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Postmark{
		client:   postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config:   cfg,
		renderer: renderer,
	}, nil
}

// Send implements goOTP.Deliverer. Link tracking is off: the message
// carries a credential.
func (p *Postmark) Send(ctx context.Context, d goOTP.Delivery) error {
	msg := p.renderer.Render(d)

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.config.From,
		ReplyTo:    p.config.ReplyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		TextBody:   msg.TextBody,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: false,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
