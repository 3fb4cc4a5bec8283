package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/liftlabs/liftapp-backend/internal/config"
)

// Media upload errors.
var (
	ErrUploadTooLarge = errors.New("uploaded file exceeds the size limit")
	ErrUploadType     = errors.New("unsupported image type")
)

// allowedImageExt maps accepted upload extensions to their canonical form.
var allowedImageExt = map[string]string{
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".png":  ".png",
	".webp": ".webp",
	".tif":  ".tif",
	".tiff": ".tif",
}

// MediaService stores uploaded document images on disk and resolves their
// public URLs.
type MediaService struct {
	cfg *config.Config
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config) *MediaService {
	return &MediaService{cfg: cfg}
}

// SaveUpload persists an uploaded image under a random filename and
// returns its storage path, relative to the upload directory.
func (s *MediaService) SaveUpload(file *multipart.FileHeader, examCode string) (string, error) {
	if file.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, file.Size)
	}

	ext, ok := allowedImageExt[strings.ToLower(filepath.Ext(file.Filename))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadType, filepath.Ext(file.Filename))
	}

	relPath := filepath.Join(examCode, uuid.New().String()+ext)
	absPath := filepath.Join(s.cfg.UploadDir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(absPath)
		return "", fmt.Errorf("write upload: %w", err)
	}

	return filepath.ToSlash(relPath), nil
}

// PublicURL resolves the public URL for a storage path. Deterministic, no
// I/O: the same path always maps to the same URL.
func (s *MediaService) PublicURL(storagePath string) string {
	cleaned := strings.TrimLeft(filepath.ToSlash(storagePath), "/")
	return s.cfg.PublicBaseURL + "/uploads/" + cleaned
}
