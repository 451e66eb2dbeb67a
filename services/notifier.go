package services

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// Mailer sends one HTML message. config.MailerConfig implements it.
type Mailer interface {
	SendMail(to []string, subject, html string) error
}

// StoreNotifier writes an in-app notification row and, when the recipient
// has a usable address, an HTML email.
type StoreNotifier struct {
	repo   store.Repository
	mailer Mailer
	now    func() time.Time
}

func NewStoreNotifier(repo store.Repository, mailer Mailer) *StoreNotifier {
	return &StoreNotifier{repo: repo, mailer: mailer, now: time.Now}
}

func (n *StoreNotifier) Notify(ctx context.Context, recipientID uint, title, body string) error {
	user, err := n.repo.GetUser(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", recipientID, err)
	}

	row := &models.Notification{
		UserID:   recipientID,
		Title:    title,
		Message:  body,
		Type:     "info",
		CreateAt: n.now(),
	}
	if err := n.repo.CreateNotification(ctx, row); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	if n.mailer != nil && utils.ValidateEmail(user.Email) {
		sendMailSafe(n.mailer, []string{user.Email}, title, buildFormalEmailHTML(title, user.DisplayName(), body))
	}
	return nil
}

func buildFormalEmailHTML(subject, recipientName, message string) string {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "Madame, Monsieur"
	}

	escapedSubject := template.HTMLEscapeString(subject)
	escapedGreeting := template.HTMLEscapeString(fmt.Sprintf("Bonjour %s,", name))
	escapedMessage := template.HTMLEscapeString(strings.TrimSpace(message))
	escapedMessage = strings.ReplaceAll(strings.ReplaceAll(escapedMessage, "\r\n", "\n"), "\r", "\n")
	escapedMessage = strings.ReplaceAll(escapedMessage, "\n", "<br />")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px 24px 28px 24px;">
    <p style="margin:0 0 16px 0;font-size:16px;line-height:1.7;color:#111827;">%s</p>
    <p style="margin:0 0 16px 0;font-size:16px;line-height:1.7;color:#111827;word-break:break-word;">%s</p>
    <p style="margin:0;font-size:14px;line-height:1.6;color:#6b7280;">Comité d'éthique de la recherche (CERBO)</p>
  </div>
</div>
</body>
</html>`, escapedSubject, escapedGreeting, escapedMessage)
}

func sendMailSafe(m Mailer, to []string, subject, html string) {
	if err := m.SendMail(to, subject, html); err != nil {
		log.Printf("notification email send failed (subject=%q to=%v): %v", subject, to, err)
	}
}
