package controllers

import (
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/middleware"
	"coursegate/backend/models"
	"coursegate/backend/services"
	"coursegate/backend/utils"
)

type QuizzesController struct {
	DB       *gorm.DB
	Validate *validator.Validate
	Quizzes  *services.QuizService
}

func NewQuizzesController(db *gorm.DB, v *validator.Validate, quizzes *services.QuizService) *QuizzesController {
	return &QuizzesController{DB: db, Validate: v, Quizzes: quizzes}
}

type submitQuizInput struct {
	Answers []services.QuizAnswer `json:"answers" validate:"required,min=1,dive"`
}

func (qc *QuizzesController) SubmitQuiz(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	quizID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return apperrors.Validation("Invalid quiz ID")
	}

	var input submitQuizInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := qc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	submission, err := qc.Quizzes.Submit(user, uint(quizID), input.Answers)
	if err != nil {
		return err
	}
	return utils.OK(c, "Quiz submitted", submission)
}

// GetLevelQuiz hands back the quiz questions without the answer key.
func (qc *QuizzesController) GetLevelQuiz(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	levelID, err := strconv.Atoi(c.Params("levelId"))
	if err != nil {
		return apperrors.Validation("Invalid level ID")
	}

	quiz, err := qc.Quizzes.QuestionsForLearner(user, uint(levelID))
	if err != nil {
		return err
	}

	questions := make([]fiber.Map, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions = append(questions, fiber.Map{
			"id":             q.ID,
			"question":       q.Question,
			"options":        q.OptionList(),
			"sequence_order": q.SequenceOrder,
		})
	}
	return utils.OK(c, "", fiber.Map{
		"id":            quiz.ID,
		"title":         quiz.Title,
		"passing_score": quiz.PassingScore,
		"max_attempts":  quiz.MaxAttempts,
		"questions":     questions,
	})
}

type createQuizInput struct {
	LevelID      uint                `json:"level_id" validate:"required"`
	Title        string              `json:"title"`
	PassingScore int                 `json:"passing_score" validate:"omitempty,min=1,max=100"`
	MaxAttempts  int                 `json:"max_attempts" validate:"omitempty,min=1"`
	Questions    []quizQuestionInput `json:"questions" validate:"required,min=1,dive"`
}

type quizQuestionInput struct {
	Question      string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"required,min=2"`
	CorrectAnswer int      `json:"correct_answer" validate:"min=0"`
	SequenceOrder int      `json:"sequence_order"`
}

// CreateQuiz is the admin surface for attaching a quiz to a level.
func (qc *QuizzesController) CreateQuiz(c *fiber.Ctx) error {
	var input createQuizInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := qc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	var level models.Level
	if err := qc.DB.First(&level, input.LevelID).Error; err != nil {
		return apperrors.NotFound("Level not found")
	}

	for _, q := range input.Questions {
		if q.CorrectAnswer >= len(q.Options) {
			return apperrors.Validation("correct_answer index out of range")
		}
	}

	quiz := models.Quiz{
		LevelID:      level.ID,
		Title:        input.Title,
		PassingScore: 70,
		MaxAttempts:  3,
	}
	if input.PassingScore > 0 {
		quiz.PassingScore = input.PassingScore
	}
	if input.MaxAttempts > 0 {
		quiz.MaxAttempts = input.MaxAttempts
	}

	err := qc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&quiz).Error; err != nil {
			if err := tx.Where("level_id = ?", level.ID).First(&models.Quiz{}).Error; err == nil {
				return apperrors.Validation("level already has a quiz")
			}
			return err
		}
		for i, q := range input.Questions {
			options, err := optionsJSON(q.Options)
			if err != nil {
				return err
			}
			question := models.QuizQuestion{
				QuizID:        quiz.ID,
				Question:      q.Question,
				Options:       options,
				CorrectAnswer: q.CorrectAnswer,
				SequenceOrder: i + 1,
			}
			if q.SequenceOrder > 0 {
				question.SequenceOrder = q.SequenceOrder
			}
			if err := tx.Create(&question).Error; err != nil {
				return err
			}
		}
		return tx.Model(&level).Update("quiz_required", true).Error
	})
	if err != nil {
		return err
	}

	var created models.Quiz
	if err := qc.DB.Preload("Questions").First(&created, quiz.ID).Error; err != nil {
		return err
	}
	return utils.Created(c, "Quiz created", created)
}

func optionsJSON(options []string) (datatypes.JSON, error) {
	raw, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
