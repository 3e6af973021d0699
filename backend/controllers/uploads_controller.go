package controllers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"coursegate/backend/apperrors"
	"coursegate/backend/config"
	"coursegate/backend/utils"
)

// UploadsController receives proof-of-payment images and stores them under
// the storage dir with generated names, so no user-controlled path component
// ever reaches the filesystem.
type UploadsController struct {
	Cfg *config.Config
}

func NewUploadsController(cfg *config.Config) *UploadsController {
	return &UploadsController{Cfg: cfg}
}

var allowedProofExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

func (uc *UploadsController) UploadProof(c *fiber.Ctx) error {
	file, err := c.FormFile("proof")
	if err != nil {
		return apperrors.Validation("proof file is required")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedProofExts[ext] {
		return apperrors.Validation(fmt.Sprintf("unsupported proof file type %q", ext))
	}

	dir := filepath.Join(uc.Cfg.StorageDir, "proofs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	name := uuid.New().String() + ext
	dest := filepath.Join(dir, name)
	if err := c.SaveFile(file, dest); err != nil {
		return err
	}

	return utils.Created(c, "Proof uploaded", fiber.Map{
		"proof_path": dest,
	})
}
