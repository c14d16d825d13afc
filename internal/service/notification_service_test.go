package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type notificationReaderStub struct {
	notifications []models.Notification
	markedAll     []string
}

func (r *notificationReaderStub) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	var result []models.Notification
	for _, n := range r.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (r *notificationReaderStub) CountUnread(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notificationReaderStub) MarkRead(ctx context.Context, userID, notificationID string) (int64, error) {
	for i, n := range r.notifications {
		if n.UserID == userID && n.ID == notificationID {
			r.notifications[i].IsRead = true
			return 1, nil
		}
	}
	return 0, nil
}

func (r *notificationReaderStub) MarkAllRead(ctx context.Context, userID string) error {
	r.markedAll = append(r.markedAll, userID)
	return nil
}

func TestNotificationServiceListUnreadOnly(t *testing.T) {
	repo := &notificationReaderStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-1", Title: "Application Approved", IsRead: true},
		{ID: "note-2", UserID: "user-1", Title: "Payment Verified"},
		{ID: "note-3", UserID: "user-2", Title: "New Payment Receipt"},
	}}
	svc := NewNotificationService(repo, nil)

	notifications, err := svc.List(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, "Payment Verified", notifications[0].Title)

	count, err := svc.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := &notificationReaderStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-1"},
	}}
	svc := NewNotificationService(repo, nil)

	require.NoError(t, svc.MarkRead(context.Background(), "user-1", "note-1"))
	require.True(t, repo.notifications[0].IsRead)
}

func TestNotificationServiceMarkReadOtherUsersNotification(t *testing.T) {
	repo := &notificationReaderStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-2"},
	}}
	svc := NewNotificationService(repo, nil)

	err := svc.MarkRead(context.Background(), "user-1", "note-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.False(t, repo.notifications[0].IsRead)
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	repo := &notificationReaderStub{}
	svc := NewNotificationService(repo, nil)

	require.NoError(t, svc.MarkAllRead(context.Background(), "user-1"))
	require.Equal(t, []string{"user-1"}, repo.markedAll)
}
