package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"larder/internal/models"
)

// Notifier is told about comments that wait for moderation.
type Notifier interface {
	NotifyPendingComment(c *models.Comment)
}

type MailService struct {
	Host        string
	Port        string
	Username    string
	Password    string
	From        string
	To          string
	SiteURL     string
	TemplateDir string
	Enabled     bool

	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewMailService(logger *zap.Logger) *MailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	user := os.Getenv("SMTP_USER")
	pass := os.Getenv("SMTP_PASS")
	from := os.Getenv("SMTP_FROM")
	to := os.Getenv("MODERATION_NOTIFY_EMAIL")

	enabled := host != "" && port != "" && user != "" && pass != "" && from != "" && to != ""
	if !enabled {
		logger.Warn("MailService disabled: missing SMTP or MODERATION_NOTIFY_EMAIL environment variables")
	}

	return &MailService{
		Host:        host,
		Port:        port,
		Username:    user,
		Password:    pass,
		From:        from,
		To:          to,
		SiteURL:     strings.TrimSuffix(os.Getenv("SITE_URL"), "/"),
		TemplateDir: filepath.Join("web", "templates", "email"),
		Enabled:     enabled,
		send:        smtp.SendMail,
		logger:      logger,
	}
}

func (s *MailService) buildMessage(to []string, subject, body string) []byte {
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"From: Larder Moderation <%s>\r\n"+
		"Subject: %s\r\n"+
		"%s\r\n%s", strings.Join(to, ","), s.From, subject, mime, body))
}

func (s *MailService) sendAsync(to []string, subject string, body string) {
	if !s.Enabled {
		return
	}

	go func() {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

		if err := s.send(addr, auth, s.From, to, s.buildMessage(to, subject, body)); err != nil {
			s.logger.Error("send email", zap.Strings("to", to), zap.Error(err))
			return
		}
		s.logger.Info("email sent", zap.Strings("to", to), zap.String("subject", subject))
	}()
}

func (s *MailService) parseTemplate(templateName string, data interface{}) (string, error) {
	path := filepath.Join(s.TemplateDir, templateName)
	t, err := template.ParseFiles(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// NotifyPendingComment emails the moderator about a comment awaiting review.
func (s *MailService) NotifyPendingComment(c *models.Comment) {
	if !s.Enabled {
		return
	}
	body, err := s.parseTemplate("moderation.html", map[string]string{
		"AuthorName": c.AuthorName,
		"PageSlug":   c.PageSlug,
		"Content":    c.Content,
		"PageLink":   s.SiteURL + "/" + strings.TrimPrefix(c.PageSlug, "/"),
		"AdminLink":  s.SiteURL + "/api/admin/comments?status=pending",
	})
	if err != nil {
		s.logger.Error("render moderation email", zap.Error(err))
		return
	}
	s.sendAsync([]string{s.To}, "New comment awaiting moderation on "+c.PageSlug, body)
}
