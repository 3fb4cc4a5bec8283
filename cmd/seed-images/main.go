package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/database"
	"github.com/liftlabs/liftapp-backend/internal/logger"
	"github.com/liftlabs/liftapp-backend/internal/repository"
)

// seedExts mirrors the upload whitelist in the media service.
var seedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// Registers document images already present on disk with the database.
// Expects the upload directory laid out as <upload_dir>/<exam_code>/<file>,
// the same layout the admin upload endpoint produces.
func main() {
	var dir string
	flag.StringVar(&dir, "dir", "", "Image directory to scan (defaults to UPLOAD_DIR)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if dir == "" {
		dir = cfg.UploadDir
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	imageRepo := repository.NewImageRepository(pool)

	fmt.Printf("=== Seeding Document Images from %s ===\n", dir)

	// exam code -> id, resolved lazily per subdirectory
	examIDs := map[string]int{}
	successCount := 0
	skipCount := 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !seedExts[strings.ToLower(filepath.Ext(path))] {
			skipCount++
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		// First path segment is the exam code.
		code, _, found := strings.Cut(rel, "/")
		if !found {
			fmt.Printf("Skipping %s: not under an exam code directory\n", rel)
			skipCount++
			return nil
		}

		examID, ok := examIDs[code]
		if !ok {
			examID, err = examRepo.GetIDByCode(ctx, code)
			if err != nil {
				fmt.Printf("Skipping %s: unknown exam code %q\n", rel, code)
				skipCount++
				return nil
			}
			examIDs[code] = examID
		}

		name := d.Name()
		if _, err := imageRepo.Create(ctx, examID, rel, &name); err != nil {
			fmt.Printf("Error registering %s: %v\n", rel, err)
			return nil
		}

		successCount++
		if successCount%25 == 0 {
			fmt.Printf("Registered %d images...\n", successCount)
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Walk failed")
	}

	fmt.Printf("\nSeed completed! Registered %d images (%d skipped).\n", successCount, skipCount)
}
