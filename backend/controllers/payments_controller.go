package controllers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/middleware"
	"coursegate/backend/models"
	"coursegate/backend/services"
	"coursegate/backend/utils"
)

type PaymentsController struct {
	DB          *gorm.DB
	Validate    *validator.Validate
	Payments    *services.PaymentService
	Progression *services.ProgressionService
}

func NewPaymentsController(db *gorm.DB, v *validator.Validate, payments *services.PaymentService, progression *services.ProgressionService) *PaymentsController {
	return &PaymentsController{DB: db, Validate: v, Payments: payments, Progression: progression}
}

type submitPaymentInput struct {
	CourseID      uint   `json:"course_id" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required"`
	ProofPath     string `json:"proof_path" validate:"required"`
	Amount        int64  `json:"amount" validate:"required"`
}

// SubmitPayment returns 201 for a fresh record and 200 with a "resubmitted"
// message when a rejected record was reused.
func (pc *PaymentsController) SubmitPayment(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input submitPaymentInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := pc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	result, err := pc.Payments.Submit(user, services.SubmitPaymentInput{
		CourseID:      input.CourseID,
		TransactionID: input.TransactionID,
		ProofPath:     input.ProofPath,
		Amount:        input.Amount,
	})
	if err != nil {
		return err
	}

	if result.Resubmitted {
		return utils.OK(c, "Payment resubmitted", result.Payment)
	}
	return utils.Created(c, "Payment submitted", result.Payment)
}

type setStatusInput struct {
	Status          string `json:"status" validate:"required"`
	RejectionReason string `json:"rejection_reason"`
	Notes           string `json:"notes"`
}

func (pc *PaymentsController) SetPaymentStatus(c *fiber.Ctx) error {
	verifier := middleware.CurrentUser(c)

	paymentID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return apperrors.Validation("Invalid payment ID")
	}

	var input setStatusInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := pc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	payment, err := pc.Payments.SetStatus(uint(paymentID), verifier, services.SetStatusInput{
		Status:          input.Status,
		RejectionReason: input.RejectionReason,
		Notes:           input.Notes,
	})
	if err != nil {
		return err
	}
	return utils.OK(c, "Payment status updated", payment)
}

// CoursePaymentStatus reports where the learner stands for one course:
// payment status, access decision, and the unlock frontier.
func (pc *PaymentsController) CoursePaymentStatus(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	courseID, err := strconv.Atoi(c.Params("courseId"))
	if err != nil {
		return apperrors.Validation("Invalid course ID")
	}

	var course models.Course
	if err := pc.DB.First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Course not found")
		}
		return err
	}
	if !course.IsPublished() && !user.IsAdmin() {
		return apperrors.NotFound("Course not found")
	}

	status, payment, err := pc.Payments.LatestStatus(pc.DB, user.ID, course.ID)
	if err != nil {
		return err
	}
	hasAccess := services.HasAccess(user.Role, course.Price, status)

	progress, err := pc.Progression.Get(user.ID, course.ID)
	if err != nil {
		return err
	}
	currentLevel := 1
	totalProgress := 0
	if progress != nil {
		currentLevel = progress.CurrentLevel
		totalProgress = progress.TotalProgress
	}

	resp := fiber.Map{
		"status":        status,
		"has_access":    hasAccess,
		"progress":      totalProgress,
		"current_level": currentLevel,
	}
	if payment != nil && payment.Status == models.PaymentRejected {
		resp["rejection_reason"] = payment.RejectionReason
	}
	return utils.OK(c, "", resp)
}

// ListPayments is the verifier queue, optionally filtered by ?status=.
func (pc *PaymentsController) ListPayments(c *fiber.Ctx) error {
	payments, err := pc.Payments.List(c.Query("status"))
	if err != nil {
		return err
	}
	return utils.OK(c, "", payments)
}
