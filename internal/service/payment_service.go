package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

const pqUniqueViolation = "23505"

type paymentRepository interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	SavePayment(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error
	MaxSequence(ctx context.Context, exec sqlx.ExtContext, prefix, yearSuffix string) (int, error)
}

// RejectPaymentRequest carries the optional rejection reason.
type RejectPaymentRequest struct {
	Reason *string `json:"reason"`
}

// PaymentService drives the unpaid → pending_verification → verified payment
// workflow and allocates student numbers on first verification.
type PaymentService struct {
	repo       paymentRepository
	effects    effectsRecorder
	tx         txProvider
	allocator  *studentNumberAllocator
	maxRetries int
	logger     *zap.Logger
}

// NewPaymentService constructs PaymentService. maxRetries bounds the number of
// attempts when concurrent verifications collide on the same student number.
func NewPaymentService(repo paymentRepository, effects effectsRecorder, tx txProvider, prefix string, maxRetries int, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &PaymentService{
		repo:       repo,
		effects:    effects,
		tx:         tx,
		allocator:  newStudentNumberAllocator(repo, prefix),
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Verify marks a submitted payment as verified. The first verification in an
// application's history also assigns its student number; the whole transaction
// is retried when two verifications race onto the same number.
func (s *PaymentService) Verify(ctx context.Context, actor models.Actor, applicationID string) (*models.Application, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		app, err := s.verifyOnce(ctx, actor, applicationID)
		if err == nil {
			return app, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("student number collision, retrying",
			zap.String("application_id", applicationID), zap.Int("attempt", attempt+1))
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate student number")
}

func (s *PaymentService) verifyOnce(ctx context.Context, actor models.Actor, applicationID string) (*models.Application, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.repo.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.PaymentStatus != models.PaymentPendingVerification {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("payment is %s, not pending verification", app.PaymentStatus))
	}

	now := time.Now().UTC()
	app.PaymentStatus = models.PaymentVerified
	app.PaymentVerifiedAt = &now
	app.PaymentRejectionReason = nil

	if app.StudentNumber == nil {
		number, err := s.allocator.Next(ctx, tx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute student number")
		}
		app.StudentNumber = &number
	}

	if err := s.repo.SavePayment(ctx, tx, app); err != nil {
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify payment")
	}

	if err := s.effects.Notify(ctx, tx, app.UserID,
		"Payment Verified",
		fmt.Sprintf("Your payment has been verified. Your student number is %s.", *app.StudentNumber),
		models.NotifPaymentVerified); err != nil {
		return nil, err
	}
	if err := s.effects.Audit(ctx, tx, actor, models.AuditPaymentVerified, app.Label(), nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit verification")
	}
	s.logger.Info("payment verified",
		zap.String("application_id", app.ID),
		zap.Stringp("student_number", app.StudentNumber),
		zap.String("actor", actor.Email))
	return app, nil
}

// Reject sends a submitted payment back to unpaid so the student can upload a
// corrected receipt.
func (s *PaymentService) Reject(ctx context.Context, actor models.Actor, applicationID string, req RejectPaymentRequest) (*models.Application, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.repo.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.PaymentStatus != models.PaymentPendingVerification {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("payment is %s, not pending verification", app.PaymentStatus))
	}

	reason := trimmedOrNil(req.Reason)
	app.PaymentStatus = models.PaymentUnpaid
	app.PaymentReceiptPath = nil
	app.PaymentVerifiedAt = nil
	app.PaymentRejectionReason = reason

	if err := s.repo.SavePayment(ctx, tx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject payment")
	}

	message := "Your payment receipt was rejected. Please upload a new receipt."
	if reason != nil {
		message = fmt.Sprintf("%s Reason: %s", message, *reason)
	}
	if err := s.effects.Notify(ctx, tx, app.UserID, "Payment Rejected", message, models.NotifPaymentRejected); err != nil {
		return nil, err
	}
	if err := s.effects.Audit(ctx, tx, actor, models.AuditPaymentRejected, app.Label(), reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit rejection")
	}
	s.logger.Info("payment rejected", zap.String("application_id", app.ID), zap.String("actor", actor.Email))
	return app, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
