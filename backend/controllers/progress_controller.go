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

type ProgressController struct {
	DB          *gorm.DB
	Validate    *validator.Validate
	Payments    *services.PaymentService
	Progression *services.ProgressionService
}

func NewProgressController(db *gorm.DB, v *validator.Validate, payments *services.PaymentService, progression *services.ProgressionService) *ProgressController {
	return &ProgressController{DB: db, Validate: v, Payments: payments, Progression: progression}
}

type levelCompleteInput struct {
	CourseID            uint  `json:"course_id" validate:"required"`
	LevelID             uint  `json:"level_id" validate:"required"`
	VideoWatchedPercent int   `json:"video_watched_percent" validate:"min=0,max=100"`
	QuizScore           *int  `json:"quiz_score"`
	QuizPassed          *bool `json:"quiz_passed"`
}

// LevelComplete records a watch/completion event. The sequence rule is
// enforced inside the tracker: a level past the frontier fails with 403 and
// changes nothing.
func (pc *ProgressController) LevelComplete(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var input levelCompleteInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := pc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	var course models.Course
	if err := pc.DB.First(&course, input.CourseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Course not found")
		}
		return err
	}
	if !course.IsPublished() && !user.IsAdmin() {
		return apperrors.NotFound("Course not found")
	}

	var level models.Level
	if err := pc.DB.Where("id = ? AND course_id = ?", input.LevelID, course.ID).First(&level).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Level not found")
		}
		return err
	}

	status, _, err := pc.Payments.LatestStatus(pc.DB, user.ID, course.ID)
	if err != nil {
		return err
	}
	if !services.HasAccess(user.Role, course.Price, status) {
		return apperrors.Forbidden("no access to this course")
	}

	progress, err := pc.Progression.RecordLevelProgress(user.ID, &course, &level, services.LevelCompletionInput{
		VideoWatchedPercent: input.VideoWatchedPercent,
		QuizScore:           input.QuizScore,
		QuizPassed:          input.QuizPassed,
	})
	if err != nil {
		return err
	}
	return utils.OK(c, "Progress updated", progress)
}

func (pc *ProgressController) GetCourseProgress(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	courseID, err := strconv.Atoi(c.Params("courseId"))
	if err != nil {
		return apperrors.Validation("Invalid course ID")
	}

	progress, err := pc.Progression.Get(user.ID, uint(courseID))
	if err != nil {
		return err
	}
	if progress == nil {
		return apperrors.NotFound("No progress for this course")
	}
	return utils.OK(c, "", progress)
}
