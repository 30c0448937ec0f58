package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/postwise/postwise/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memNotificationRepo struct {
	mu      sync.Mutex
	created []*models.Notification
	err     error
	panics  bool
}

func (m *memNotificationRepo) Create(ctx context.Context, n *models.Notification) (int64, error) {
	if m.panics {
		panic("notification store unavailable")
	}
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, n)
	return int64(len(m.created)), nil
}

func (m *memNotificationRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.Notification, error) {
	return m.created, nil
}

func (m *memNotificationRepo) MarkRead(ctx context.Context, id, userID int64) error { return nil }

type memUserRepo struct {
	user *models.User
}

func (m *memUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return m.user, nil
}

type memEmailSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *memEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return m.err
}

func testPost(notify bool) *models.Post {
	return &models.Post{
		ID:        10,
		BrandID:   2,
		CreatorID: 4,
		Caption:   "Hello world",
		Settings:  models.PostSettings{NotifyOnPublish: notify},
	}
}

func TestPublishSucceededCreatesNotificationAndEmail(t *testing.T) {
	nr := &memNotificationRepo{}
	email := &memEmailSender{}
	d := NewDispatcher(nr, &memUserRepo{user: &models.User{ID: 4, Email: "creator@example.com"}}, email)

	d.PublishSucceeded(testPost(true), &models.Schedule{ID: 1, Platform: "instagram", PlatformURL: "https://instagram.com/p/x"})
	d.Wait()

	require.Len(t, nr.created, 1)
	assert.Equal(t, models.NotificationPostPublished, nr.created[0].Kind)
	assert.Contains(t, nr.created[0].Message, "https://instagram.com/p/x")
	assert.Equal(t, []string{"creator@example.com"}, email.sent)
}

func TestPublishSucceededSkipsEmailWhenNotOptedIn(t *testing.T) {
	nr := &memNotificationRepo{}
	email := &memEmailSender{}
	d := NewDispatcher(nr, &memUserRepo{user: &models.User{ID: 4, Email: "creator@example.com"}}, email)

	d.PublishSucceeded(testPost(false), &models.Schedule{ID: 1, Platform: "instagram"})
	d.Wait()

	require.Len(t, nr.created, 1)
	assert.Empty(t, email.sent)
}

func TestPublishFailedAlwaysEmails(t *testing.T) {
	nr := &memNotificationRepo{}
	email := &memEmailSender{}
	d := NewDispatcher(nr, &memUserRepo{user: &models.User{ID: 4, Email: "creator@example.com"}}, email)

	d.PublishFailed(testPost(false), &models.Schedule{ID: 1, Platform: "tiktok"}, "token revoked")
	d.Wait()

	require.Len(t, nr.created, 1)
	assert.Equal(t, models.NotificationPostFailed, nr.created[0].Kind)
	assert.Contains(t, nr.created[0].Message, "token revoked")
	assert.Equal(t, []string{"creator@example.com"}, email.sent)
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	nr := &memNotificationRepo{err: errors.New("db down")}
	email := &memEmailSender{err: errors.New("smtp down")}
	d := NewDispatcher(nr, &memUserRepo{user: &models.User{ID: 4, Email: "creator@example.com"}}, email)

	// must not panic or block
	d.PublishSucceeded(testPost(true), &models.Schedule{ID: 1, Platform: "instagram"})
	d.PublishFailed(testPost(true), &models.Schedule{ID: 1, Platform: "instagram"}, "boom")
	d.Wait()
}

func TestSinkPanicIsContained(t *testing.T) {
	nr := &memNotificationRepo{panics: true}
	d := NewDispatcher(nr, &memUserRepo{}, nil)

	assert.NotPanics(t, func() {
		d.PublishFailed(testPost(false), &models.Schedule{ID: 1, Platform: "tiktok"}, "boom")
		d.Wait()
	})
}

func TestNilEmailSenderIsFine(t *testing.T) {
	nr := &memNotificationRepo{}
	d := NewDispatcher(nr, &memUserRepo{}, nil)

	d.PublishFailed(testPost(true), &models.Schedule{ID: 1, Platform: "tiktok"}, "boom")
	d.Wait()

	require.Len(t, nr.created, 1)
}
