package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/mail"
)

// Webhook delivers render updates, direct messages and role grants as JSON
// POSTs to the chat bridge. When no DM endpoint is configured and a mail
// domain is, direct messages fall back to SMTP.
type Webhook struct {
	RenderURL string
	DirectURL string
	RoleURL   string

	// MailDomain, when set, turns "user" into "user@<MailDomain>" for the
	// SMTP fallback path.
	MailDomain string

	HTTPClient *http.Client
}

// NewWebhookFromEnv builds the sink from NOTIFY_RENDER_URL, NOTIFY_DM_URL,
// NOTIFY_ROLE_URL and DM_EMAIL_DOMAIN.
func NewWebhookFromEnv() *Webhook {
	return &Webhook{
		RenderURL:  strings.TrimSpace(env.GetEnv("NOTIFY_RENDER_URL", "")),
		DirectURL:  strings.TrimSpace(env.GetEnv("NOTIFY_DM_URL", "")),
		RoleURL:    strings.TrimSpace(env.GetEnv("NOTIFY_ROLE_URL", "")),
		MailDomain: strings.TrimSpace(env.GetEnv("DM_EMAIL_DOMAIN", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Render pushes a presentation update for the invoice message.
func (w *Webhook) Render(state RenderState) error {
	if w.RenderURL == "" {
		return fmt.Errorf("notify: NOTIFY_RENDER_URL not configured")
	}
	return w.post(w.RenderURL, state)
}

// NotifyDirect delivers a direct message to the user, via webhook when
// configured, otherwise via SMTP.
func (w *Webhook) NotifyDirect(userID string, msg DirectMessage) error {
	if w.DirectURL != "" {
		payload := struct {
			UserID string `json:"user_id"`
			DirectMessage
		}{UserID: userID, DirectMessage: msg}
		return w.post(w.DirectURL, payload)
	}

	if w.MailDomain != "" {
		body := msg.Body
		if msg.ProductKey != "" {
			body += fmt.Sprintf("<p>Product Key: <b>%s</b></p>", msg.ProductKey)
		}
		return mail.SendMail(fmt.Sprintf("%s@%s", userID, w.MailDomain), msg.Subject, body)
	}

	return fmt.Errorf("notify: no direct message channel configured")
}

// GrantRole asks the chat bridge to assign the configured purchase role.
func (w *Webhook) GrantRole(userID string) error {
	if w.RoleURL == "" {
		return fmt.Errorf("notify: NOTIFY_ROLE_URL not configured")
	}
	return w.post(w.RoleURL, map[string]string{"user_id": userID})
}

func (w *Webhook) post(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	resp, err := w.HTTPClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: post %s: http %d: %s", url, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
