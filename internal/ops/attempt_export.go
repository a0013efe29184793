package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
)

// ExportAttemptsInput contains parameters for the ExportAttempts operation.
type ExportAttemptsInput struct {
	BundleID string // required
	Path     string // optional, default: ~/.bundler/exports/<bundle>-attempts-<timestamp>.jsonl
}

// ExportAttemptsOutput contains the result of the ExportAttempts operation.
type ExportAttemptsOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an attempts export.
type ExportHeader struct {
	BundlerExport bool    `json:"_bundler_export"`
	SchemaVersion string  `json:"schema_version"`
	ExportedAt    int64   `json:"exported_at"`
	BundleID      string  `json:"bundle_id"`
	BundleName    *string `json:"bundle_name"`
}

// ExportAttempts writes a bundle's attempts, final prompts included, to a JSONL audit file.
// The file is written to a temp name and renamed into place, so an existing export
// survives a failed run.
func ExportAttempts(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportAttemptsInput) (*ExportAttemptsOutput, error) {
	bundleID := strings.TrimSpace(input.BundleID)
	if bundleID == "" {
		return nil, errors.NewInvalidRequest("bundle_id is required")
	}
	b, err := db.GetBundle(ctx, database, bundleID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		label := b.ID
		if b.Name != nil {
			label = *b.Name
		}
		exportPath, err = defaultExportPath(label, now)
		if err != nil {
			return nil, err
		}
	}
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(suffix) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	header := ExportHeader{
		BundlerExport: true,
		SchemaVersion: "1.0",
		ExportedAt:    now.Unix(),
		BundleID:      b.ID,
		BundleName:    b.Name,
	}
	if err := writeJSONLine(file, header); err != nil {
		return nil, err
	}

	rows, err := db.StreamAttempts(ctx, database, bundleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if err := checkCancelled(ctx, "export"); err != nil {
			return nil, err
		}
		a, err := db.ScanAttempt(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := writeJSONLine(file, a); err != nil {
			return nil, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted after validation.
	if isSymlink(exportPath) {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportAttemptsOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// defaultExportPath returns ~/.bundler/exports/<label>-attempts-<timestamp>.jsonl.
func defaultExportPath(label string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-attempts-%s.jsonl", SanitizeForFilename(label), now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}
