package api

import (
	"crypto/subtle"
	"strings"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookAuth checks the Telegram secret header. An empty secret disables the check.
type WebhookAuth struct {
	secret string
}

func NewWebhookAuth(secret string) *WebhookAuth {
	return &WebhookAuth{secret: strings.TrimSpace(secret)}
}

func (a *WebhookAuth) Enabled() bool {
	return a != nil && a.secret != ""
}

// Check reports whether got matches the configured secret.
func (a *WebhookAuth) Check(got string) bool {
	if !a.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(a.secret), []byte(got)) == 1
}
