package delivery

import (
	"fmt"
	"html"
	"strings"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
)

// Message is a rendered verification email.
type Message struct {
	To       string
	Subject  string
	Tag      string
	TextBody string
	HTMLBody string
}

// Renderer turns a delivery into an email. Product names the sender in the
// subject line; CodeTTL is quoted in the body when positive.
type Renderer struct {
	Product string
	CodeTTL time.Duration
}

func (r Renderer) Render(d goOTP.Delivery) Message {
	product := r.Product
	if product == "" {
		product = "your account"
	}

	var subject, intro string
	switch d.Purpose {
	case goOTP.PurposePasswordReset:
		subject = fmt.Sprintf("Reset your %s password", product)
		intro = "Use this code to reset your password."
	default:
		subject = fmt.Sprintf("Confirm your %s email", product)
		intro = "Use this code to confirm your email address."
	}

	var text strings.Builder
	text.WriteString(intro)
	text.WriteString("\n\n    ")
	text.WriteString(d.Code)
	text.WriteString("\n\n")
	if r.CodeTTL > 0 {
		fmt.Fprintf(&text, "The code expires in %s.\n", humanDuration(r.CodeTTL))
	}
	text.WriteString("If you did not ask for this, you can ignore this email.\n")

	body := "<p>" + html.EscapeString(intro) + "</p>" +
		"<p style=\"font-size:24px;letter-spacing:4px\"><strong>" + html.EscapeString(d.Code) + "</strong></p>"
	if r.CodeTTL > 0 {
		body += "<p>The code expires in " + humanDuration(r.CodeTTL) + ".</p>"
	}
	body += "<p>If you did not ask for this, you can ignore this email.</p>"

	return Message{
		To:       d.Email,
		Subject:  subject,
		Tag:      d.Purpose.String(),
		TextBody: text.String(),
		HTMLBody: body,
	}
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.Round(time.Second).String()
}
