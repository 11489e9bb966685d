package app

import (
	"fmt"
	"strings"
	"time"

	"portfolio/internal/util"
	"portfolio/pkg/domain"
)

// ContactInput is a public contact form submission.
type ContactInput struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// SubmitContactMessage stores a submission. meta carries request details
// (client ip, user agent, request id) for triage.
func (a *App) SubmitContactMessage(in ContactInput, meta map[string]string) (domain.ContactMessage, error) {
	in = ContactInput{
		Name:    strings.TrimSpace(in.Name),
		Email:   normalizeEmail(in.Email),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}
	if in.Name == "" || in.Email == "" || in.Subject == "" || in.Message == "" {
		return domain.ContactMessage{}, ErrContactFieldsRequired
	}
	if !validEmail(in.Email) {
		return domain.ContactMessage{}, ErrInvalidEmail
	}
	msg := domain.ContactMessage{
		ID:        util.NewID(),
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Message:   in.Message,
		Meta:      compactMeta(meta),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveContactMessage(msg); err != nil {
		return domain.ContactMessage{}, fmt.Errorf("save contact message: %w", err)
	}
	return msg, nil
}

// ListContactMessages returns all messages newest first.
func (a *App) ListContactMessages() ([]domain.ContactMessage, error) {
	msgs, err := a.store.ListContactMessages()
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	return msgs, nil
}

// ReadContactMessage returns a message and marks it read.
func (a *App) ReadContactMessage(id string) (domain.ContactMessage, error) {
	msg, ok, err := a.store.GetContactMessage(id)
	if err != nil {
		return domain.ContactMessage{}, fmt.Errorf("fetch contact message: %w", err)
	}
	if !ok {
		return domain.ContactMessage{}, ErrMessageNotFound
	}
	if !msg.Read {
		if err := a.store.MarkContactMessageRead(id); err != nil {
			return domain.ContactMessage{}, fmt.Errorf("mark contact message read: %w", err)
		}
		msg.Read = true
	}
	return msg, nil
}

// DeleteContactMessage removes a message.
func (a *App) DeleteContactMessage(id string) error {
	_, ok, err := a.store.GetContactMessage(id)
	if err != nil {
		return fmt.Errorf("fetch contact message: %w", err)
	}
	if !ok {
		return ErrMessageNotFound
	}
	if err := a.store.DeleteContactMessage(id); err != nil {
		return fmt.Errorf("delete contact message: %w", err)
	}
	return nil
}

func compactMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
