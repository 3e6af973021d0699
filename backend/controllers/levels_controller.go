package controllers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/middleware"
	"coursegate/backend/models"
	"coursegate/backend/services"
	"coursegate/backend/utils"
)

type LevelsController struct {
	DB       *gorm.DB
	Validate *validator.Validate
	Stream   *services.StreamService
}

func NewLevelsController(db *gorm.DB, v *validator.Validate, stream *services.StreamService) *LevelsController {
	return &LevelsController{DB: db, Validate: v, Stream: stream}
}

type levelInput struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	LevelNumber  int    `json:"level_number" validate:"required,min=1"`
	QuizRequired bool   `json:"quiz_required"`
	VideoPath    string `json:"video_path"`
	VideoURL     string `json:"video_url"`
}

// videoSourceFromInput builds the tagged video variant. Path and URL are
// mutually exclusive; a remote URL must pass the host allow-list here, at
// write time — the streaming path never re-checks it.
func (lc *LevelsController) videoSourceFromInput(in levelInput) (models.VideoSource, error) {
	if in.VideoPath != "" && in.VideoURL != "" {
		return models.VideoSource{}, apperrors.Validation("video_path and video_url are mutually exclusive")
	}
	if in.VideoPath != "" {
		return models.VideoSource{Type: models.VideoLocal, Path: in.VideoPath}, nil
	}
	if in.VideoURL != "" {
		if err := lc.Stream.ValidateRemoteURL(in.VideoURL); err != nil {
			return models.VideoSource{}, err
		}
		return models.VideoSource{Type: models.VideoRemote, URL: in.VideoURL}, nil
	}
	return models.VideoSource{}, nil
}

func (lc *LevelsController) CreateLevel(c *fiber.Ctx) error {
	courseID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return apperrors.Validation("Invalid course ID")
	}

	var input levelInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}
	if err := lc.Validate.Struct(input); err != nil {
		return apperrors.Validation(err.Error())
	}

	var course models.Course
	if err := lc.DB.First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Course not found")
		}
		return err
	}

	src, err := lc.videoSourceFromInput(input)
	if err != nil {
		return err
	}

	level := models.Level{
		CourseID:     course.ID,
		Title:        input.Title,
		Description:  input.Description,
		LevelNumber:  input.LevelNumber,
		QuizRequired: input.QuizRequired,
	}
	level.SetVideo(src)

	err = lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&level).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Validation(fmt.Sprintf("level number %d already exists in this course", input.LevelNumber))
			}
			return err
		}
		var count int64
		if err := tx.Model(&models.Level{}).Where("course_id = ?", course.ID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&course).Update("level_count", count).Error
	})
	if err != nil {
		return err
	}

	return utils.Created(c, "Level created", level)
}

func (lc *LevelsController) UpdateLevel(c *fiber.Ctx) error {
	levelID, err := strconv.Atoi(c.Params("levelId"))
	if err != nil {
		return apperrors.Validation("Invalid level ID")
	}

	var input levelInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Cannot parse JSON")
	}

	var level models.Level
	if err := lc.DB.First(&level, levelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Level not found")
		}
		return err
	}

	if input.Title != "" {
		level.Title = input.Title
	}
	if input.Description != "" {
		level.Description = input.Description
	}
	if input.VideoPath != "" || input.VideoURL != "" {
		src, err := lc.videoSourceFromInput(input)
		if err != nil {
			return err
		}
		level.SetVideo(src)
	}

	if err := lc.DB.Save(&level).Error; err != nil {
		return err
	}
	return utils.OK(c, "Level updated", level)
}

// StreamLevel serves the level video: 200/206 for local files, proxied bytes
// for external links, 416 on an unsatisfiable range, 502 when the upstream
// misbehaves. Authorization ordering lives in the stream service.
func (lc *LevelsController) StreamLevel(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	levelID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return apperrors.NotFound("Level not found")
	}

	level, err := lc.Stream.Authorize(user, uint(levelID))
	if err != nil {
		return err
	}

	src := level.Video()
	if src.Type == models.VideoRemote {
		return lc.proxyRemote(c, src.URL)
	}
	return lc.serveLocal(c, level)
}

func (lc *LevelsController) serveLocal(c *fiber.Ctx, level *models.Level) error {
	f, size, err := lc.Stream.OpenLocal(level)
	if err != nil {
		return err
	}

	contentType := localContentType(level.VideoPath)

	byteRange, err := services.ParseRange(c.Get(fiber.HeaderRange), size)
	if err != nil {
		f.Close()
		c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes */%d", size))
		return c.Status(fiber.StatusRequestedRangeNotSatisfiable).Send(nil)
	}

	if byteRange == nil {
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Status(fiber.StatusOK)
		return c.SendStream(f, int(size))
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderAcceptRanges, "bytes")
	c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", byteRange.Start, byteRange.End, size))
	c.Status(fiber.StatusPartialContent)
	return c.SendStream(services.RangeReader(f, *byteRange), int(byteRange.Length()))
}

func (lc *LevelsController) proxyRemote(c *fiber.Ctx, rawURL string) error {
	// c.Context() is cancelled when the client disconnects, which aborts the
	// upstream fetch instead of leaking it.
	resp, err := lc.Stream.FetchRemote(c.Context(), rawURL, c.Get(fiber.HeaderRange))
	if err != nil {
		return err
	}

	for _, h := range services.ProxyHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Set(h, v)
		}
	}
	c.Status(resp.StatusCode)

	if length := services.UpstreamContentLength(resp); length >= 0 {
		return c.SendStream(resp.Body, int(length))
	}
	return c.SendStream(resp.Body)
}

func localContentType(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return fiber.MIMEOctetStream
	}
	return fiberutils.GetMIME(ext)
}
