package mailer

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// OTPMessage is the password reset code e-mail.
func OTPMessage(toEmail, toName, code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", displayName(toName))
	fmt.Fprintf(&text, "Your password reset code is %s.\n", code)
	fmt.Fprintf(&text, "It expires in %d minutes. If you did not ask for a reset, ignore this e-mail.\n", minutes)

	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your password reset code is <strong style=\"font-size:20px;letter-spacing:4px\">%s</strong>.</p>"+
			"<p>It expires in %d minutes. If you did not ask for a reset, ignore this e-mail.</p>",
		html.EscapeString(displayName(toName)), html.EscapeString(code), minutes)

	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Your password reset code",
		Text:    text.String(),
		HTML:    body,
	}
}

// PasswordChangedMessage confirms a completed reset.
func PasswordChangedMessage(toEmail, toName string) Message {
	name := displayName(toName)
	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Your password was changed",
		Text: fmt.Sprintf("Hello %s,\n\nYour Battery Log password was just changed. "+
			"If this was not you, contact an administrator.\n", name),
		HTML: fmt.Sprintf("<p>Hello %s,</p><p>Your Battery Log password was just changed. "+
			"If this was not you, contact an administrator.</p>", html.EscapeString(name)),
	}
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
