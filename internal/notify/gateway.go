// Package notify delivers broadcast offers and operator alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/models"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var ErrNoRecipient = errors.New("NO_RECIPIENT")

// EmailSender is satisfied by aws.SESClient.
type EmailSender interface {
	SendText(ctx context.Context, from string, to []string, subject, body string) (string, error)
}

// TopicPublisher is satisfied by aws.SNSClient.
type TopicPublisher interface {
	PublishToTopic(ctx context.Context, topicARN, subject, message string) (string, error)
}

type Config struct {
	FromEmail      string
	AdminEmails    []string
	AdminTopicARN  string
	ChatWebhookURL string
	Timeout        time.Duration
	RatePerSecond  int
}

// Gateway sends offer emails through SES and fans operator alerts out to
// SES, SNS and an optional chat webhook.
type Gateway struct {
	cfg    Config
	email  EmailSender
	topic  TopicPublisher
	chat   *resty.Client
	logger logger.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGateway builds a gateway. topic may be nil when no admin topic is configured.
func NewGateway(cfg Config, email EmailSender, topic TopicPublisher, log logger.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	g := &Gateway{
		cfg:   cfg,
		email: email,
		topic: topic,
		chat: resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetRetryMaxWaitTime(2*time.Second).
			SetHeader("Content-Type", "application/json"),
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
	g.SetRate(cfg.RatePerSecond)
	return g
}

// SetRate changes the offer send rate. Zero or less disables pacing.
func (g *Gateway) SetRate(perSecond int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if perSecond <= 0 {
		g.limiter = nil
		return
	}
	g.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// Send delivers one offer email. Errors are returned so the caller can count
// the target as unsent; the gateway never retries offers itself.
func (g *Gateway) Send(ctx context.Context, msg models.Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return apperrors.NewNotificationSendFailedError("email", ErrNoRecipient)
	}

	g.mu.Lock()
	lim := g.limiter
	g.mu.Unlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return apperrors.NewNotificationSendFailedError("email", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if _, err := g.email.SendText(ctx, g.cfg.FromEmail, []string{msg.To}, msg.Subject, msg.Body); err != nil {
		return apperrors.NewNotificationSendFailedError("email", err)
	}
	return nil
}

// NotifyAdmin alerts operators on every configured channel. Failures are
// logged and never returned.
func (g *Gateway) NotifyAdmin(ctx context.Context, alert models.AdminAlert) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if len(g.cfg.AdminEmails) > 0 {
		if _, err := g.email.SendText(ctx, g.cfg.FromEmail, g.cfg.AdminEmails, alert.Subject, alert.Body); err != nil {
			g.logger.Warn("admin email failed", map[string]interface{}{"error": err})
		}
	}

	if g.topic != nil && g.cfg.AdminTopicARN != "" {
		if _, err := g.topic.PublishToTopic(ctx, g.cfg.AdminTopicARN, alert.Subject, alert.Body); err != nil {
			g.logger.Warn("admin topic publish failed", map[string]interface{}{"error": err})
		}
	}

	if g.cfg.ChatWebhookURL != "" {
		if err := g.postChat(ctx, alert); err != nil {
			g.logger.Warn("admin chat webhook failed", map[string]interface{}{"error": err})
		}
	}
}

func (g *Gateway) postChat(ctx context.Context, alert models.AdminAlert) error {
	resp, err := g.chat.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": fmt.Sprintf("%s\n%s", alert.Subject, alert.Body)}).
		Post(g.cfg.ChatWebhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("chat webhook returned %s", resp.Status())
	}
	return nil
}
