package notification

import (
	"context"
	"fmt"
	"html"

	"lms/apperror"
	"lms/models"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gorm.io/gorm"
)

type EmailConfig struct {
	APIKey     string
	SenderName string
	Sender     string
	// Host overrides the SendGrid API host, mostly for tests.
	Host string
}

// Email sends the notice to the user's address through SendGrid.
type Email struct {
	db  *gorm.DB
	cfg EmailConfig
}

func NewEmail(db *gorm.DB, cfg EmailConfig) *Email {
	if cfg.Host == "" {
		cfg.Host = "https://api.sendgrid.com"
	}
	return &Email{db: db, cfg: cfg}
}

func (n *Email) Notify(ctx context.Context, userID uint, title, message, actionURL string) error {
	var user models.User
	err := n.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", userID, false).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("User not found!")
	}
	if err != nil {
		return apperror.Storage(err, "load user for email")
	}
	if user.Email == "" {
		return apperror.InvalidRequest("User has no email address!")
	}

	from := mail.NewEmail(n.cfg.SenderName, n.cfg.Sender)
	to := mail.NewEmail(user.Name, user.Email)
	msg := mail.NewSingleEmail(from, title, to, message+"\n\n"+actionURL, n.render(user.Name, title, message, actionURL))

	request := sendgrid.GetRequest(n.cfg.APIKey, "/v3/mail/send", n.cfg.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(msg)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return apperror.Upstream(err, "Email provider unreachable!")
	}
	if resp.StatusCode >= 300 {
		return apperror.Upstream(errors.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body), "Email provider rejected the message!")
	}
	return nil
}

func (n *Email) render(name, title, message, actionURL string) string {
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>%s</p>
		<a class="btn" href="%s">View certificate</a>
	`, html.EscapeString(name), html.EscapeString(message), html.EscapeString(actionURL))
	return emailTemplate(n.cfg.SenderName, html.EscapeString(title), body)
}

func emailTemplate(brand, title, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
			.header { background-color: #00004D; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #00004D; line-height: 1.6; }
			.btn { display: inline-block; padding: 12px 24px; background-color: #d7b56d; color: #FFFFFF; text-decoration: none; border-radius: 4px; font-weight: bold; margin-top: 20px; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header"><h1>%s</h1></div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
		</div>
	</body>
	</html>
	`, html.EscapeString(brand), title, bodyContent)
}
