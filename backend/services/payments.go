package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/models"
)

type PaymentService struct {
	DB          *gorm.DB
	Progression *ProgressionService
	Dispatcher  Dispatcher
}

func NewPaymentService(db *gorm.DB, progression *ProgressionService, dispatcher Dispatcher) *PaymentService {
	return &PaymentService{DB: db, Progression: progression, Dispatcher: dispatcher}
}

type SubmitPaymentInput struct {
	CourseID      uint
	TransactionID string
	ProofPath     string
	Amount        int64
}

type SubmitPaymentResult struct {
	Payment     *models.Payment
	Resubmitted bool
}

// Submit records a proof-of-payment for (user, course). A pending or approved
// record blocks a second submission; a rejected one is reused in place. The
// unique index on (user_id, course_id) settles concurrent first submissions:
// exactly one row is created and the loser sees a conflict.
func (s *PaymentService) Submit(user *models.User, in SubmitPaymentInput) (*SubmitPaymentResult, error) {
	course, err := s.visibleCourse(user, in.CourseID)
	if err != nil {
		return nil, err
	}
	if course.IsFree() {
		return nil, apperrors.FreeCourse("course is free, no payment needed")
	}
	if in.Amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}
	if in.TransactionID == "" || in.ProofPath == "" {
		return nil, apperrors.Validation("transaction_id and proof are required")
	}

	var result SubmitPaymentResult
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		err := tx.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&existing).Error
		switch {
		case err == nil:
			if existing.Status != models.PaymentRejected {
				return apperrors.AlreadyCovered("a payment for this course is already pending or approved")
			}
			// Resubmission: the rejected record is reused, not duplicated.
			existing.TransactionID = in.TransactionID
			existing.ProofPath = in.ProofPath
			existing.Amount = in.Amount
			existing.Status = models.PaymentPending
			existing.VerifiedBy = nil
			existing.VerifiedAt = nil
			existing.RejectionReason = ""
			existing.Notes = ""
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			result = SubmitPaymentResult{Payment: &existing, Resubmitted: true}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			payment := models.Payment{
				UserID:        user.ID,
				CourseID:      course.ID,
				TransactionID: in.TransactionID,
				ProofPath:     in.ProofPath,
				Amount:        in.Amount,
				Status:        models.PaymentPending,
			}
			if err := tx.Create(&payment).Error; err != nil {
				if isDuplicateErr(err) {
					return apperrors.AlreadyCovered("a payment for this course is already pending or approved")
				}
				return err
			}
			result = SubmitPaymentResult{Payment: &payment}
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.notifySubmitted(user, course, result.Payment)
	return &result, nil
}

type SetStatusInput struct {
	Status          string
	RejectionReason string
	Notes           string
}

// SetStatus is the verifier action. Approval guarantees entitlement becomes
// observable immediately: the progress row is created in the same transaction
// that commits the status.
func (s *PaymentService) SetStatus(paymentID uint, verifier *models.User, in SetStatusInput) (*models.Payment, error) {
	if !models.ValidPaymentStatus(in.Status) {
		return nil, apperrors.Validation(fmt.Sprintf("invalid status %q", in.Status))
	}
	if in.Status == models.PaymentRejected && in.RejectionReason == "" {
		return nil, apperrors.Validation("rejection_reason is required when rejecting")
	}

	var payment models.Payment
	var previous string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payment, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("payment not found")
			}
			return err
		}
		previous = payment.Status

		payment.Status = in.Status
		payment.Notes = in.Notes
		switch in.Status {
		case models.PaymentApproved:
			now := time.Now()
			payment.VerifiedBy = &verifier.ID
			payment.VerifiedAt = &now
			payment.RejectionReason = ""
		case models.PaymentRejected:
			now := time.Now()
			payment.VerifiedBy = &verifier.ID
			payment.VerifiedAt = &now
			payment.RejectionReason = in.RejectionReason
		case models.PaymentPending:
			payment.VerifiedBy = nil
			payment.VerifiedAt = nil
			payment.RejectionReason = ""
		}
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		if in.Status == models.PaymentApproved {
			if _, err := s.Progression.EnsureProgress(tx, payment.UserID, payment.CourseID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != payment.Status {
		s.notifyStatusChanged(&payment, previous)
	}
	return &payment, nil
}

// LatestStatus reads the current payment status for (user, course), empty when
// no record exists. Always a fresh read; entitlement decisions depend on it.
func (s *PaymentService) LatestStatus(db *gorm.DB, userID, courseID uint) (string, *models.Payment, error) {
	var payment models.Payment
	err := db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return payment.Status, &payment, nil
}

// List returns payment records for the verifier view, optionally filtered by
// status.
func (s *PaymentService) List(status string) ([]models.Payment, error) {
	query := s.DB.Order("created_at DESC")
	if status != "" {
		if !models.ValidPaymentStatus(status) {
			return nil, apperrors.Validation(fmt.Sprintf("invalid status %q", status))
		}
		query = query.Where("status = ?", status)
	}
	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *PaymentService) visibleCourse(user *models.User, courseID uint) (*models.Course, error) {
	var course models.Course
	if err := s.DB.First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Validation("course not found")
		}
		return nil, err
	}
	if !course.IsPublished() && !user.IsAdmin() {
		return nil, apperrors.Validation("course not found")
	}
	return &course, nil
}

func (s *PaymentService) notifySubmitted(learner *models.User, course *models.Course, payment *models.Payment) {
	if s.Dispatcher == nil {
		return
	}
	payload := map[string]interface{}{
		"payment_id": payment.ID,
		"course_id":  course.ID,
		"amount":     payment.Amount,
	}
	s.Dispatcher.Enqueue(Task{
		UserID:  learner.ID,
		Email:   learner.Email,
		Kind:    models.NotifyPaymentSubmitted,
		Subject: fmt.Sprintf("Payment received for %s", course.Title),
		Body:    fmt.Sprintf("Your payment proof for %q was received and is waiting for verification.", course.Title),
		Payload: payload,
	})

	var admins []models.User
	if err := s.DB.Where("role = ? AND active = ?", models.RoleAdmin, true).Find(&admins).Error; err != nil {
		return
	}
	for _, admin := range admins {
		s.Dispatcher.Enqueue(Task{
			UserID:  admin.ID,
			Email:   admin.Email,
			Kind:    models.NotifyPaymentSubmitted,
			Subject: fmt.Sprintf("Payment awaiting verification for %s", course.Title),
			Body:    fmt.Sprintf("User %d submitted payment proof for %q.", learner.ID, course.Title),
			Payload: payload,
		})
	}
}

func (s *PaymentService) notifyStatusChanged(payment *models.Payment, previous string) {
	if s.Dispatcher == nil {
		return
	}
	var learner models.User
	if err := s.DB.First(&learner, payment.UserID).Error; err != nil {
		return
	}

	// A rejected record moving back to pending through the verifier path is a
	// resubmission, not a verdict; learners get the "submitted" mail so their
	// inbox is not a confusing approved/rejected ping-pong.
	kind := models.NotifyPaymentStatus
	subject := fmt.Sprintf("Payment %s", payment.Status)
	body := fmt.Sprintf("Your payment status changed to %s.", payment.Status)
	if previous == models.PaymentRejected && payment.Status == models.PaymentPending {
		kind = models.NotifyPaymentSubmitted
		subject = "Payment received"
		body = "Your payment proof was received and is waiting for verification."
	}
	if payment.Status == models.PaymentRejected && payment.RejectionReason != "" {
		body = fmt.Sprintf("Your payment was rejected: %s", payment.RejectionReason)
	}

	s.Dispatcher.Enqueue(Task{
		UserID:  learner.ID,
		Email:   learner.Email,
		Kind:    kind,
		Subject: subject,
		Body:    body,
		Payload: map[string]interface{}{
			"payment_id": payment.ID,
			"course_id":  payment.CourseID,
			"status":     payment.Status,
			"previous":   previous,
		},
	})
}

// isDuplicateErr recognizes a unique-constraint violation from either driver:
// gorm's translated error, or the raw postgres SQLSTATE 23505.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
