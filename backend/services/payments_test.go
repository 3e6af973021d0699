package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/models"
)

func newPaymentFixture(t *testing.T) (*PaymentService, *gorm.DB, *captureDispatcher) {
	t.Helper()
	db := testDB(t)
	dispatcher := &captureDispatcher{}
	progression := NewProgressionService(db)
	return NewPaymentService(db, progression, dispatcher), db, dispatcher
}

func submitInput(courseID uint) SubmitPaymentInput {
	return SubmitPaymentInput{
		CourseID:      courseID,
		TransactionID: "TRX-001",
		ProofPath:     "/uploads/proofs/abc.jpg",
		Amount:        5000,
	}
}

func TestSubmitCreatesPendingPayment(t *testing.T) {
	svc, db, dispatcher := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	admin := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 2)

	result, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)
	assert.False(t, result.Resubmitted)
	assert.Equal(t, models.PaymentPending, result.Payment.Status)
	assert.Equal(t, learner.ID, result.Payment.UserID)

	// Learner and every active admin are notified of the submission.
	tasks := dispatcher.all()
	require.Len(t, tasks, 2)
	assert.Equal(t, learner.ID, tasks[0].UserID)
	assert.Equal(t, models.NotifyPaymentSubmitted, tasks[0].Kind)
	assert.Equal(t, admin.ID, tasks[1].UserID)
	assert.Equal(t, models.NotifyPaymentSubmitted, tasks[1].Kind)
}

func TestSubmitFreeCourseRefused(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	course := seedCourse(t, db, "Free Intro", 0, models.CoursePublished, 1)

	_, err := svc.Submit(learner, submitInput(course.ID))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFreeCourse, apperrors.CodeOf(err))

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitDraftCourseLooksMissing(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	course := seedCourse(t, db, "Unreleased", 5000, models.CourseDraft, 1)

	_, err := svc.Submit(learner, submitInput(course.ID))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestSubmitRejectsBadAmount(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	in := submitInput(course.ID)
	in.Amount = 0
	_, err := svc.Submit(learner, in)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestSubmitWhilePendingIsConflict(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	_, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)

	_, err = svc.Submit(learner, submitInput(course.ID))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAlreadyCovered, apperrors.CodeOf(err))

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSubmitCreateRaceMapsToConflict(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	// A rival row lands between the not-found read and our create, so the
	// insert itself hits the unique index. The rival is injected inside the
	// same transaction (the submit transaction already holds a read lock, so
	// a second connection could not write here); the duplicate-key mapping is
	// the same either way.
	raced := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("rival_payment", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.Payment); !ok || raced {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Create(&models.Payment{
			UserID:        learner.ID,
			CourseID:      course.ID,
			TransactionID: "TRX-RIVAL",
			ProofPath:     "/uploads/proofs/rival.jpg",
			Amount:        5000,
			Status:        models.PaymentPending,
		})
	}))
	defer db.Callback().Create().Remove("rival_payment")

	_, err := svc.Submit(learner, submitInput(course.ID))
	require.Error(t, err)
	require.True(t, raced)
	assert.Equal(t, apperrors.CodeAlreadyCovered, apperrors.CodeOf(err))
}

func TestResubmissionReusesRejectedRecord(t *testing.T) {
	svc, db, dispatcher := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	first, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)

	_, err = svc.SetStatus(first.Payment.ID, verifier, SetStatusInput{
		Status:          models.PaymentRejected,
		RejectionReason: "proof unreadable",
	})
	require.NoError(t, err)
	dispatcher.reset()

	in := submitInput(course.ID)
	in.TransactionID = "TRX-002"
	second, err := svc.Submit(learner, in)
	require.NoError(t, err)
	assert.True(t, second.Resubmitted)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, models.PaymentPending, second.Payment.Status)
	assert.Equal(t, "TRX-002", second.Payment.TransactionID)
	assert.Nil(t, second.Payment.VerifiedBy)
	assert.Nil(t, second.Payment.VerifiedAt)
	assert.Empty(t, second.Payment.RejectionReason)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSetStatusApprovedCreatesProgress(t *testing.T) {
	svc, db, dispatcher := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 3)

	result, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)
	dispatcher.reset()

	payment, err := svc.SetStatus(result.Payment.ID, verifier, SetStatusInput{Status: models.PaymentApproved})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentApproved, payment.Status)
	require.NotNil(t, payment.VerifiedBy)
	assert.Equal(t, verifier.ID, *payment.VerifiedBy)
	assert.NotNil(t, payment.VerifiedAt)

	var progress models.Progress
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", learner.ID, course.ID).First(&progress).Error)
	assert.Equal(t, 1, progress.CurrentLevel)
	assert.Zero(t, progress.TotalProgress)
	assert.False(t, progress.CourseCompleted)

	tasks := dispatcher.all()
	require.Len(t, tasks, 1)
	assert.Equal(t, models.NotifyPaymentStatus, tasks[0].Kind)
	assert.Equal(t, learner.ID, tasks[0].UserID)
}

func TestSetStatusRejectedRequiresReason(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	result, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)

	_, err = svc.SetStatus(result.Payment.ID, verifier, SetStatusInput{Status: models.PaymentRejected})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestSetStatusRejectedToPendingNotifiesAsSubmission(t *testing.T) {
	svc, db, dispatcher := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	result, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)

	_, err = svc.SetStatus(result.Payment.ID, verifier, SetStatusInput{
		Status:          models.PaymentRejected,
		RejectionReason: "wrong amount",
	})
	require.NoError(t, err)
	dispatcher.reset()

	payment, err := svc.SetStatus(result.Payment.ID, verifier, SetStatusInput{Status: models.PaymentPending})
	require.NoError(t, err)
	assert.Nil(t, payment.VerifiedBy)
	assert.Empty(t, payment.RejectionReason)

	tasks := dispatcher.all()
	require.Len(t, tasks, 1)
	assert.Equal(t, models.NotifyPaymentSubmitted, tasks[0].Kind)
}

func TestSetStatusUnchangedSendsNothing(t *testing.T) {
	svc, db, dispatcher := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	result, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)
	dispatcher.reset()

	_, err = svc.SetStatus(result.Payment.ID, verifier, SetStatusInput{Status: models.PaymentPending})
	require.NoError(t, err)
	assert.Empty(t, dispatcher.all())
}

func TestSetStatusValidation(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)

	_, err := svc.SetStatus(1, verifier, SetStatusInput{Status: "refunded"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = svc.SetStatus(999, verifier, SetStatusInput{Status: models.PaymentApproved})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestLatestStatus(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	status, payment, err := svc.LatestStatus(db, learner.ID, course.ID)
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.Nil(t, payment)

	_, err = svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)

	status, payment, err = svc.LatestStatus(db, learner.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, status)
	require.NotNil(t, payment)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, db, _ := newPaymentFixture(t)
	learner := seedUser(t, db, "learner", models.RoleUser)
	other := seedUser(t, db, "other", models.RoleUser)
	verifier := seedUser(t, db, "admin", models.RoleAdmin)
	course := seedCourse(t, db, "Go Basics", 5000, models.CoursePublished, 1)

	first, err := svc.Submit(learner, submitInput(course.ID))
	require.NoError(t, err)
	_, err = svc.Submit(other, submitInput(course.ID))
	require.NoError(t, err)
	_, err = svc.SetStatus(first.Payment.ID, verifier, SetStatusInput{Status: models.PaymentApproved})
	require.NoError(t, err)

	pending, err := svc.List(models.PaymentPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].UserID)

	all, err := svc.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.List("bogus")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}
