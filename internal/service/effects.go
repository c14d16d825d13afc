package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type notificationWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) error
}

type auditWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditEntry) error
}

type staffReader interface {
	ListActiveByRole(ctx context.Context, exec sqlx.ExtContext, role models.UserRole) ([]models.User, error)
}

// EffectsDispatcher records the side effects of lifecycle transitions:
// notifications and audit entries. Everything is written on the caller's
// executor so effects commit or roll back with the transition itself.
type EffectsDispatcher struct {
	notifications notificationWriter
	audits        auditWriter
	staff         staffReader
	logger        *zap.Logger
}

// NewEffectsDispatcher constructs an EffectsDispatcher.
func NewEffectsDispatcher(notifications notificationWriter, audits auditWriter, staff staffReader, logger *zap.Logger) *EffectsDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EffectsDispatcher{notifications: notifications, audits: audits, staff: staff, logger: logger}
}

// Notify creates one notification addressed to a single user.
func (d *EffectsDispatcher) Notify(ctx context.Context, exec sqlx.ExtContext, userID, title, message string, notifType models.NotificationType) error {
	n := &models.Notification{UserID: userID, Title: title, Message: message, Type: notifType}
	if err := d.notifications.Create(ctx, exec, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return nil
}

// NotifyRole fans a notification out to every active account holding the role.
func (d *EffectsDispatcher) NotifyRole(ctx context.Context, exec sqlx.ExtContext, role models.UserRole, title, message string, notifType models.NotificationType) error {
	users, err := d.staff.ListActiveByRole(ctx, exec, role)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve notification recipients")
	}
	for _, user := range users {
		if err := d.Notify(ctx, exec, user.ID, title, message, notifType); err != nil {
			return err
		}
	}
	return nil
}

// Audit appends exactly one audit entry for a transition.
func (d *EffectsDispatcher) Audit(ctx context.Context, exec sqlx.ExtContext, actor models.Actor, action, target string, details *string) error {
	entry := &models.AuditEntry{
		UserEmail:  actor.Email,
		UserRole:   string(actor.Role),
		Action:     action,
		TargetName: &target,
		Details:    details,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if err := d.audits.Create(ctx, exec, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create audit entry")
	}
	d.logger.Debug("audit recorded",
		zap.String("action", action),
		zap.String("target", target),
		zap.String("actor", actor.Email))
	return nil
}
