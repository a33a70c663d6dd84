// Package notify turns a published notification event into per-channel
// delivery: web push through the subscription registry, email over SMTP,
// and stubs for mobile and IoT. Channels are dispatched independently so
// one channel's failure never blocks another's delivery.
package notify

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/store"
	"github.com/crewdeck/relay/internal/topic"
	"github.com/crewdeck/relay/pkg/logger"
	"github.com/crewdeck/relay/pkg/shortid"
)

// EventNotificationPublished is the backbone event this consumer handles.
const EventNotificationPublished = "notification.published"

// TargetUser is the denormalized recipient carried in the publish payload,
// so delivery does not need a user lookup of its own.
type TargetUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// NotificationRecord is the wire form of the notification to deliver. Any
// pre-assigned id is discarded on persistence; storage assigns its own.
type NotificationRecord struct {
	ID    string                 `json:"id,omitempty"`
	Type  string                 `json:"type"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Payload is the notification publish message.
type Payload struct {
	Notification      NotificationRecord     `json:"notification"`
	APINotification   map[string]interface{} `json:"api_notification,omitempty"`
	TargetUser        *TargetUser            `json:"target_user,omitempty"`
	ScopeModels       [][]string             `json:"scope_models,omitempty"`
	EmailTemplateName string                 `json:"email_template_name,omitempty"`
	EmailFormats      map[string]interface{} `json:"email_formats,omitempty"`
}

// Publisher pushes an event back onto the broadcast backbone. Satisfied by
// backbone.Backbone.
type Publisher interface {
	Publish(ctx context.Context, ev registry.Event) error
}

// Consumer delivers published notifications across channels, honoring
// per-user per-channel unsubscriptions.
type Consumer struct {
	log           *zap.Logger
	notifications store.NotificationStore
	unsubs        store.UnsubscriptionStore
	publisher     Publisher

	// mailer is nil when SMTP is not configured; the email channel is
	// then skipped entirely.
	mailer Mailer
}

func NewConsumer(
	log *zap.Logger,
	notifications store.NotificationStore,
	unsubs store.UnsubscriptionStore,
	publisher Publisher,
	mailer Mailer,
) *Consumer {
	return &Consumer{
		log:           log.With(zap.String("module", "notify")),
		notifications: notifications,
		unsubs:        unsubs,
		publisher:     publisher,
		mailer:        mailer,
	}
}

// Handle processes one published notification. Each channel is attempted
// regardless of what happened to the others.
func (c *Consumer) Handle(ctx context.Context, ev registry.Event) {
	log := logger.FromContext(ctx, c.log)

	p, err := decodePayload(ev.Data)
	if err != nil {
		log.Warn("malformed notification payload, skipping", zap.Error(err))
		return
	}
	if p.TargetUser == nil || p.TargetUser.ID == "" {
		log.Warn("notification without target user, skipping",
			zap.String("type", p.Notification.Type))
		return
	}
	userID := shortid.FromShortCode(p.TargetUser.ID)
	if userID == 0 {
		log.Warn("notification target user id is not decodable, skipping",
			zap.String("user_id", p.TargetUser.ID))
		return
	}

	if err := c.deliverWeb(ctx, p, userID); err != nil {
		log.Error("web delivery failed", zap.String("type", p.Notification.Type), zap.Error(err))
	}
	if err := c.deliverEmail(ctx, p, userID); err != nil {
		log.Error("email delivery failed", zap.String("type", p.Notification.Type), zap.Error(err))
	}
	c.deliverMobile(ctx, p, userID)
	c.deliverIoT(ctx, p, userID)
}

func decodePayload(data interface{}) (*Payload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "remarshal payload")
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	return &p, nil
}

func (c *Consumer) deliverWeb(ctx context.Context, p *Payload, userID uint64) error {
	if c.suppressed(ctx, userID, store.ChannelWeb, p.Notification.Type, p.ScopeModels) {
		return nil
	}

	created, err := c.notifications.Create(ctx, &store.Notification{
		UserID: userID,
		Type:   p.Notification.Type,
		Title:  p.Notification.Title,
		Body:   p.Notification.Body,
		Data:   p.Notification.Data,
	})
	if err != nil {
		return errors.Wrap(err, "persist notification")
	}

	data := p.APINotification
	if data == nil {
		data = map[string]interface{}{
			"id":         created.ShortID(),
			"type":       created.Type,
			"title":      created.Title,
			"body":       created.Body,
			"data":       created.Data,
			"created_at": created.CreatedAt,
		}
	} else {
		data["id"] = created.ShortID()
	}

	return c.publisher.Publish(ctx, registry.Event{
		Topic:   topic.UserPrivate,
		TopicID: p.TargetUser.ID,
		Name:    "notificationCreate",
		Data:    data,
	})
}

func (c *Consumer) deliverEmail(ctx context.Context, p *Payload, userID uint64) error {
	if c.mailer == nil || p.EmailTemplateName == "" {
		return nil
	}
	if p.TargetUser.Email == "" {
		return nil
	}
	if c.suppressed(ctx, userID, store.ChannelEmail, p.Notification.Type, p.ScopeModels) {
		return nil
	}

	subject, body, ok := renderEmail(p.EmailTemplateName, p.TargetUser.Language, p.EmailFormats)
	if !ok {
		// Missing or broken template is a silent no-send.
		c.log.Debug("email template unavailable, not sending",
			zap.String("template", p.EmailTemplateName),
			zap.String("language", p.TargetUser.Language))
		return nil
	}
	return errors.Wrap(c.mailer.Send(p.TargetUser.Email, subject, body), "send email")
}

// deliverMobile runs the suppression check so a future push implementation
// inherits correct semantics; delivery itself is an extension point.
func (c *Consumer) deliverMobile(ctx context.Context, p *Payload, userID uint64) {
	if c.suppressed(ctx, userID, store.ChannelMobile, p.Notification.Type, p.ScopeModels) {
		return
	}
	c.log.Debug("mobile delivery not implemented", zap.String("type", p.Notification.Type))
}

func (c *Consumer) deliverIoT(ctx context.Context, p *Payload, userID uint64) {
	if c.suppressed(ctx, userID, store.ChannelIoT, p.Notification.Type, p.ScopeModels) {
		return
	}
	c.log.Debug("iot delivery not implemented", zap.String("type", p.Notification.Type))
}

// suppressed resolves the unsubscription state for one channel: an
// all-scope record wins outright; otherwise each distinct (table, id)
// scope pair is checked and any hit suppresses. Store errors do not
// suppress; a lookup failure must not silently swallow notifications.
func (c *Consumer) suppressed(ctx context.Context, userID uint64, ch store.Channel, notificationType string, scopes [][]string) bool {
	all, err := c.unsubs.IsUnsubscribedAll(ctx, userID, ch, notificationType)
	if err != nil {
		c.log.Warn("all-scope unsubscription lookup failed, delivering anyway",
			zap.String("channel", string(ch)), zap.Error(err))
		return false
	}
	if all {
		return true
	}

	seen := make(map[[2]string]struct{}, len(scopes))
	for _, pair := range scopes {
		if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
			continue
		}
		key := [2]string{pair[0], pair[1]}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		hit, err := c.unsubs.IsUnsubscribedFrom(ctx, userID, ch, notificationType, pair[0], pair[1])
		if err != nil {
			c.log.Warn("specific-scope unsubscription lookup failed, delivering anyway",
				zap.String("channel", string(ch)),
				zap.String("ref_table", pair[0]),
				zap.String("ref_id", pair[1]),
				zap.Error(err))
			continue
		}
		if hit {
			return true
		}
	}
	return false
}
