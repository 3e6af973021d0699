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

type CoursesController struct {
	DB          *gorm.DB
	Validate    *validator.Validate
	Payments    *services.PaymentService
	Progression *services.ProgressionService
}

func NewCoursesController(db *gorm.DB, v *validator.Validate, payments *services.PaymentService, progression *services.ProgressionService) *CoursesController {
	return &CoursesController{DB: db, Validate: v, Payments: payments, Progression: progression}
}

type courseInput struct {
	Title       string `json:"title" validate:"required"`
	ShortDesc   string `json:"short_desc"`
	Description string `json:"description"`
	Topic       string `json:"topic"`
	Difficulty  string `json:"difficulty"`
	Price       *int64 `json:"price" validate:"omitempty,min=0"`
	Status      string `json:"status" validate:"omitempty,oneof=draft published archived"`
}

func (cc *CoursesController) CreateCourse(c *fiber.Ctx) error {
	var input courseInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := cc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	course := models.Course{
		Title:       input.Title,
		ShortDesc:   input.ShortDesc,
		Description: input.Description,
		Topic:       input.Topic,
		Difficulty:  input.Difficulty,
		Status:      models.CourseDraft,
	}
	if input.Price != nil {
		course.Price = *input.Price
	}
	if input.Status != "" {
		course.Status = input.Status
	}

	if err := cc.DB.Create(&course).Error; err != nil {
		return err
	}
	return utils.Created(c, "Course created", course)
}

func (cc *CoursesController) UpdateCourse(c *fiber.Ctx) error {
	courseID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return apperrors.Validation("Invalid course ID")
	}

	var input courseInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}

	var course models.Course
	if err := cc.DB.First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Course not found")
		}
		return err
	}

	if input.Title != "" {
		course.Title = input.Title
	}
	if input.ShortDesc != "" {
		course.ShortDesc = input.ShortDesc
	}
	if input.Description != "" {
		course.Description = input.Description
	}
	if input.Topic != "" {
		course.Topic = input.Topic
	}
	if input.Difficulty != "" {
		course.Difficulty = input.Difficulty
	}
	if input.Price != nil {
		course.Price = *input.Price
	}
	if input.Status != "" {
		if err := cc.Validate.Var(input.Status, "oneof=draft published archived"); err != nil {
			return apperrors.Validation("invalid status")
		}
		course.Status = input.Status
	}

	if err := cc.DB.Save(&course).Error; err != nil {
		return err
	}
	return utils.OK(c, "Course updated", course)
}

// ListCourses shows the catalog. Learners only see published courses; admins
// see everything.
func (cc *CoursesController) ListCourses(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	query := cc.DB.Model(&models.Course{}).Order("id")
	if !user.IsAdmin() {
		query = query.Where("status = ?", models.CoursePublished)
	}
	if topic := c.Query("topic"); topic != "" {
		query = query.Where("topic LIKE ?", "%"+topic+"%")
	}

	var courses []models.Course
	if err := query.Find(&courses).Error; err != nil {
		return err
	}
	return utils.OK(c, "", courses)
}

// GetCourse returns the course detail with per-level lock state. Viewing a
// course is a "touch": the progress row is created lazily for an entitled
// learner. The stored video location never appears for non-admins.
func (cc *CoursesController) GetCourse(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	courseID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return apperrors.Validation("Invalid course ID")
	}

	var course models.Course
	if err := cc.DB.Preload("Levels", func(db *gorm.DB) *gorm.DB {
		return db.Order("level_number")
	}).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Course not found")
		}
		return err
	}
	if !course.IsPublished() && !user.IsAdmin() {
		return apperrors.NotFound("Course not found")
	}

	status, _, err := cc.Payments.LatestStatus(cc.DB, user.ID, course.ID)
	if err != nil {
		return err
	}
	hasAccess := services.HasAccess(user.Role, course.Price, status)

	var progress *models.Progress
	if hasAccess && !user.IsAdmin() {
		progress, err = cc.Progression.EnsureProgress(cc.DB, user.ID, course.ID)
		if err != nil {
			return err
		}
	} else if user.IsAdmin() {
		progress, err = cc.Progression.Get(user.ID, course.ID)
		if err != nil {
			return err
		}
	}

	currentLevel := 1
	if progress != nil {
		currentLevel = progress.CurrentLevel
	}

	levels := make([]fiber.Map, 0, len(course.Levels))
	for _, level := range course.Levels {
		entry := fiber.Map{
			"id":            level.ID,
			"title":         level.Title,
			"description":   level.Description,
			"level_number":  level.LevelNumber,
			"quiz_required": level.QuizRequired,
			"has_video":     level.Video().IsSet(),
			"locked":        !user.IsAdmin() && level.LevelNumber > currentLevel,
		}
		if user.IsAdmin() {
			entry["video_type"] = level.VideoType
			entry["video_path"] = level.VideoPath
			entry["video_url"] = level.VideoURL
		}
		levels = append(levels, entry)
	}

	return utils.OK(c, "", fiber.Map{
		"course": fiber.Map{
			"id":          course.ID,
			"title":       course.Title,
			"short_desc":  course.ShortDesc,
			"description": course.Description,
			"topic":       course.Topic,
			"difficulty":  course.Difficulty,
			"price":       course.Price,
			"status":      course.Status,
			"level_count": course.LevelCount,
			"levels":      levels,
		},
		"has_access":     hasAccess,
		"payment_status": status,
		"progress":       progress,
	})
}
