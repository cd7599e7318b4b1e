package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailroom/internal/model"
	"mailroom/internal/service"
)

var allowedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
	".docx": true, ".xlsx": true, ".txt": true,
}

const scheduledAtLayout = "2006-01-02 15:04:05"

// ClientAuthenticator resolves a send-API token to a calling service.
type ClientAuthenticator interface {
	FindActiveByToken(ctx context.Context, token string) (*model.ServiceClient, error)
}

// BulkDispatcher runs an immediate batch.
type BulkDispatcher interface {
	SendBulk(ctx context.Context, job *service.BulkJob) ([]string, error)
}

// TemplateChecker verifies a template registration up front.
type TemplateChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// DeferredWriter persists future sends, one row per recipient.
type DeferredWriter interface {
	Create(ctx context.Context, e *model.ScheduledEmail) error
}

type SendHandler struct {
	clients       ClientAuthenticator
	dispatch      BulkDispatcher
	templates     TemplateChecker
	scheduled     DeferredWriter
	attachmentDir string
	logger        *zap.Logger
}

func NewSendHandler(
	clients ClientAuthenticator,
	dispatch BulkDispatcher,
	templates TemplateChecker,
	scheduled DeferredWriter,
	attachmentDir string,
	logger *zap.Logger,
) *SendHandler {
	return &SendHandler{
		clients:       clients,
		dispatch:      dispatch,
		templates:     templates,
		scheduled:     scheduled,
		attachmentDir: attachmentDir,
		logger:        logger,
	}
}

// SendEmail handles POST /api/send_email: a multipart form with the
// job description, an API token, and an optional attachment.
func (h *SendHandler) SendEmail(c *gin.Context) {
	h.logger.Info("Email API endpoint accessed")
	ctx := c.Request.Context()

	// Optional attachment, saved before anything else so a rejected
	// file type fails fast.
	var attachments []string
	if file, err := c.FormFile("attachment"); err == nil {
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedExtensions[ext] {
			h.logger.Warn("Disallowed file type rejected", zap.String("filename", file.Filename))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Disallowed file type"})
			return
		}
		dest := filepath.Join(h.attachmentDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dest); err != nil {
			h.logger.Error("Failed to save attachment", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store attachment"})
			return
		}
		h.logger.Info("Attachment saved", zap.String("path", dest))
		attachments = append(attachments, dest)
	}

	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token missing"})
		return
	}

	client, err := h.clients.FindActiveByToken(ctx, token)
	if err != nil {
		h.logger.Warn("Invalid token attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or inactive token"})
		return
	}
	h.logger.Info("Authenticated service client",
		zap.String("service", client.ServiceName),
		zap.String("user_id", client.UserID),
	)

	fromRole := c.PostForm("from_role")
	subject := c.PostForm("subject")
	body := c.PostForm("body")
	templateName := c.PostForm("template")

	var to []string
	if raw := c.PostForm("to"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &to); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in 'to' field"})
			return
		}
	}

	variables := map[string]string{}
	if raw := c.PostForm("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &variables); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in 'variables' field"})
			return
		}
	}

	var missing []string
	if fromRole == "" {
		missing = append(missing, "from_role")
	}
	if len(to) == 0 {
		missing = append(missing, "to")
	}
	if subject == "" {
		missing = append(missing, "subject")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: " + strings.Join(missing, ", ")})
		return
	}

	if templateName != "" {
		ok, err := h.templates.Exists(ctx, templateName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Template lookup failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template '" + templateName + "' not found"})
			return
		}
	} else if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing body or template"})
		return
	}

	var scheduledAt *time.Time
	if raw := c.PostForm("scheduled_at"); raw != "" {
		t, err := time.ParseInLocation(scheduledAtLayout, raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'scheduled_at' format. Use YYYY-MM-DD HH:MM:SS"})
			return
		}
		scheduledAt = &t
	}

	if scheduledAt != nil {
		h.logger.Info("Storing scheduled emails",
			zap.Int("recipients", len(to)),
			zap.Time("scheduled_at", *scheduledAt),
		)
		for _, recipient := range to {
			entry := &model.ScheduledEmail{
				FromRole:     fromRole,
				ToEmail:      recipient,
				Subject:      subject,
				Body:         body,
				ContentType:  "text/html",
				Attachments:  attachments,
				TemplateName: templateName,
				ScheduledAt:  *scheduledAt,
			}
			if err := h.scheduled.Create(ctx, entry); err != nil {
				h.logger.Error("Failed to persist scheduled email", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule emails"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "Emails scheduled successfully."})
		return
	}

	failed, err := h.dispatch.SendBulk(ctx, &service.BulkJob{
		FromRole:     fromRole,
		To:           to,
		Subject:      subject,
		Body:         body,
		ContentType:  "text/html",
		TemplateName: templateName,
		Variables:    variables,
		Attachments:  attachments,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoRecipients):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNoSenderCredential):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Email sending failed"})
		}
		return
	}

	if len(failed) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"message":           "Some emails failed to send.",
			"failed_recipients": failed,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Emails sent successfully."})
}
