package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/middleware"
	"github.com/dbtc-online/enrollment-api/internal/models"
	"github.com/dbtc-online/enrollment-api/internal/service"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type notificationFeedStub struct {
	notifications []models.Notification
}

func (r *notificationFeedStub) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
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

func (r *notificationFeedStub) CountUnread(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *notificationFeedStub) MarkRead(ctx context.Context, userID, notificationID string) (int64, error) {
	for i, n := range r.notifications {
		if n.UserID == userID && n.ID == notificationID {
			r.notifications[i].IsRead = true
			return 1, nil
		}
	}
	return 0, nil
}

func (r *notificationFeedStub) MarkAllRead(ctx context.Context, userID string) error {
	for i, n := range r.notifications {
		if n.UserID == userID {
			r.notifications[i].IsRead = true
		}
	}
	return nil
}

func newNotificationTestContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	return c, rec
}

func TestNotificationHandlerListFiltersUnread(t *testing.T) {
	repo := &notificationFeedStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-1", Title: "Application Approved", IsRead: true},
		{ID: "note-2", UserID: "user-1", Title: "Payment Verified"},
	}}
	handler := NewNotificationHandler(service.NewNotificationService(repo, nil))

	c, rec := newNotificationTestContext(t, http.MethodGet, "/notifications?unread=true")
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, "Payment Verified", envelope.Data[0].Title)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	repo := &notificationFeedStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-1"},
		{ID: "note-2", UserID: "user-1"},
	}}
	handler := NewNotificationHandler(service.NewNotificationService(repo, nil))

	c, rec := newNotificationTestContext(t, http.MethodGet, "/notifications/unread-count")
	handler.UnreadCount(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, 2, envelope.Data["unread_count"])
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	repo := &notificationFeedStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-1"},
	}}
	handler := NewNotificationHandler(service.NewNotificationService(repo, nil))

	c, rec := newNotificationTestContext(t, http.MethodPut, "/notifications/note-1/read")
	c.Params = gin.Params{{Key: "id", Value: "note-1"}}
	handler.MarkRead(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, repo.notifications[0].IsRead)
}

func TestNotificationHandlerMarkReadNotOwned(t *testing.T) {
	repo := &notificationFeedStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-2"},
	}}
	handler := NewNotificationHandler(service.NewNotificationService(repo, nil))

	c, rec := newNotificationTestContext(t, http.MethodPut, "/notifications/note-1/read")
	c.Params = gin.Params{{Key: "id", Value: "note-1"}}
	handler.MarkRead(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, appErrors.ErrNotFound.Code, envelope.Error.Code)
}

func TestNotificationHandlerMarkAllRead(t *testing.T) {
	repo := &notificationFeedStub{notifications: []models.Notification{
		{ID: "note-1", UserID: "user-1"},
		{ID: "note-2", UserID: "user-1"},
	}}
	handler := NewNotificationHandler(service.NewNotificationService(repo, nil))

	c, rec := newNotificationTestContext(t, http.MethodPut, "/notifications/read-all")
	handler.MarkAllRead(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, repo.notifications[0].IsRead)
	require.True(t, repo.notifications[1].IsRead)
}
