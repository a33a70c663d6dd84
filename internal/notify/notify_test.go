package notify

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/store"
	"github.com/crewdeck/relay/internal/topic"
	"github.com/crewdeck/relay/pkg/shortid"
)

type fakeNotificationStore struct {
	created []*store.Notification
	err     error
}

func (f *fakeNotificationStore) Create(_ context.Context, n *store.Notification) (*store.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	created := *n
	created.ID = uint64(1000 + len(f.created))
	f.created = append(f.created, &created)
	return &created, nil
}

type unsubKey struct {
	userID  uint64
	channel store.Channel
	typ     string
	table   string
	refID   string
}

type fakeUnsubStore struct {
	all      map[unsubKey]bool
	specific map[unsubKey]bool
	err      error
}

func newFakeUnsubStore() *fakeUnsubStore {
	return &fakeUnsubStore{
		all:      make(map[unsubKey]bool),
		specific: make(map[unsubKey]bool),
	}
}

func (f *fakeUnsubStore) IsUnsubscribedAll(_ context.Context, userID uint64, ch store.Channel, typ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.all[unsubKey{userID: userID, channel: ch, typ: typ}], nil
}

func (f *fakeUnsubStore) IsUnsubscribedFrom(_ context.Context, userID uint64, ch store.Channel, typ, table, refID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.specific[unsubKey{userID: userID, channel: ch, typ: typ, table: table, refID: refID}], nil
}

type fakePublisher struct {
	events []registry.Event
}

func (f *fakePublisher) Publish(_ context.Context, ev registry.Event) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeMailer struct {
	sent []sentMail
}

type sentMail struct {
	to, subject, body string
}

func (f *fakeMailer) Send(to, subject, body string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

const testUserID = uint64(424242)

func testPayload() map[string]interface{} {
	return map[string]interface{}{
		"notification": map[string]interface{}{
			"type":  "card_assigned",
			"title": "You were assigned",
			"body":  "Alice assigned you to a card",
		},
		"target_user": map[string]interface{}{
			"id":       shortid.ToShortCode(testUserID),
			"email":    "bob@example.com",
			"name":     "Bob",
			"language": "en",
		},
		"scope_models":        [][]string{{"cards", "card-1"}},
		"email_template_name": "card_assigned",
		"email_formats": map[string]interface{}{
			"UserName":  "Bob",
			"ActorName": "Alice",
			"CardTitle": "Ship it",
			"BoardName": "Launch",
			"CardURL":   "https://crewdeck.test/c/1",
		},
	}
}

func newConsumerForTest(t *testing.T, unsubs *fakeUnsubStore, mailer Mailer) (*Consumer, *fakeNotificationStore, *fakePublisher) {
	t.Helper()
	notifications := &fakeNotificationStore{}
	pub := &fakePublisher{}
	c := NewConsumer(zaptest.NewLogger(t), notifications, unsubs, pub, mailer)
	return c, notifications, pub
}

func handle(c *Consumer, data map[string]interface{}) {
	c.Handle(context.Background(), registry.Event{Name: EventNotificationPublished, Data: data})
}

func TestHandleDeliversWebAndEmail(t *testing.T) {
	mailer := &fakeMailer{}
	c, notifications, pub := newConsumerForTest(t, newFakeUnsubStore(), mailer)

	handle(c, testPayload())

	require.Len(t, notifications.created, 1)
	assert.Equal(t, testUserID, notifications.created[0].UserID)
	assert.Equal(t, "card_assigned", notifications.created[0].Type)

	require.Len(t, pub.events, 1)
	assert.Equal(t, topic.UserPrivate, pub.events[0].Topic)
	assert.Equal(t, shortid.ToShortCode(testUserID), pub.events[0].TopicID)
	assert.Equal(t, "notificationCreate", pub.events[0].Name)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "bob@example.com", mailer.sent[0].to)
	assert.Equal(t, `Alice assigned you to "Ship it"`, mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "Hi Bob,")
	assert.Contains(t, mailer.sent[0].body, `the card "Ship it" on the board "Launch"`)
}

func TestAllScopeUnsubscriptionSuppressesOnlyThatChannel(t *testing.T) {
	unsubs := newFakeUnsubStore()
	unsubs.all[unsubKey{userID: testUserID, channel: store.ChannelEmail, typ: "card_assigned"}] = true

	mailer := &fakeMailer{}
	c, notifications, pub := newConsumerForTest(t, unsubs, mailer)

	handle(c, testPayload())

	assert.Empty(t, mailer.sent, "email channel is suppressed")
	assert.Len(t, notifications.created, 1, "web channel still delivers")
	assert.Len(t, pub.events, 1)
}

func TestSpecificScopeUnsubscriptionMatchesResource(t *testing.T) {
	unsubs := newFakeUnsubStore()
	unsubs.specific[unsubKey{
		userID: testUserID, channel: store.ChannelWeb, typ: "card_assigned",
		table: "cards", refID: "card-1",
	}] = true

	c, notifications, pub := newConsumerForTest(t, unsubs, nil)

	handle(c, testPayload())
	assert.Empty(t, notifications.created, "matching resource is suppressed")
	assert.Empty(t, pub.events)

	other := testPayload()
	other["scope_models"] = [][]string{{"cards", "card-2"}}
	handle(c, other)
	assert.Len(t, notifications.created, 1, "different resource is delivered")
	assert.Len(t, pub.events, 1)
}

func TestEmailSkippedWithoutMailerOrTemplate(t *testing.T) {
	c, notifications, _ := newConsumerForTest(t, newFakeUnsubStore(), nil)
	handle(c, testPayload())
	assert.Len(t, notifications.created, 1, "web delivery is unaffected")

	mailer := &fakeMailer{}
	c2, _, _ := newConsumerForTest(t, newFakeUnsubStore(), mailer)
	p := testPayload()
	delete(p, "email_template_name")
	handle(c2, p)
	assert.Empty(t, mailer.sent)
}

func TestEmailMissingTemplateIsSilentNoSend(t *testing.T) {
	mailer := &fakeMailer{}
	c, notifications, _ := newConsumerForTest(t, newFakeUnsubStore(), mailer)

	p := testPayload()
	p["email_template_name"] = "does_not_exist"
	assert.NotPanics(t, func() { handle(c, p) })
	assert.Empty(t, mailer.sent)
	assert.Len(t, notifications.created, 1, "other channels still deliver")
}

func TestEmailFallsBackToEnglishLocale(t *testing.T) {
	mailer := &fakeMailer{}
	c, _, _ := newConsumerForTest(t, newFakeUnsubStore(), mailer)

	p := testPayload()
	p["target_user"].(map[string]interface{})["language"] = "de"
	handle(c, p)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, `Alice assigned you to "Ship it"`, mailer.sent[0].subject)
}

func TestEmailUsesRecipientLocale(t *testing.T) {
	mailer := &fakeMailer{}
	c, _, _ := newConsumerForTest(t, newFakeUnsubStore(), mailer)

	p := testPayload()
	p["target_user"].(map[string]interface{})["language"] = "fr"
	handle(c, p)

	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].subject, "vous a assigné")
}

func TestUnsubscriptionLookupFailureStillDelivers(t *testing.T) {
	unsubs := newFakeUnsubStore()
	unsubs.err = errors.New("db down")

	mailer := &fakeMailer{}
	c, notifications, _ := newConsumerForTest(t, unsubs, mailer)

	handle(c, testPayload())
	assert.Len(t, notifications.created, 1)
	assert.Len(t, mailer.sent, 1)
}

func TestWebFailureDoesNotBlockEmail(t *testing.T) {
	unsubs := newFakeUnsubStore()
	mailer := &fakeMailer{}
	notifications := &fakeNotificationStore{err: errors.New("insert failed")}
	pub := &fakePublisher{}
	c := NewConsumer(zaptest.NewLogger(t), notifications, unsubs, pub, mailer)

	handle(c, testPayload())
	assert.Empty(t, pub.events, "web publish requires persistence")
	assert.Len(t, mailer.sent, 1, "email channel is independent")
}

func TestHandleSkipsMalformedPayloads(t *testing.T) {
	c, notifications, pub := newConsumerForTest(t, newFakeUnsubStore(), nil)

	assert.NotPanics(t, func() {
		c.Handle(context.Background(), registry.Event{Name: EventNotificationPublished, Data: "not an object"})
	})

	p := testPayload()
	delete(p, "target_user")
	handle(c, p)

	bad := testPayload()
	bad["target_user"].(map[string]interface{})["id"] = "!!!invalid!!!"
	handle(c, bad)

	assert.Empty(t, notifications.created)
	assert.Empty(t, pub.events)
}
