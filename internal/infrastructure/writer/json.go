package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mathadata/usage-insights/internal/application/export"
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// JSON REPORT WRITER
// ══════════════════════════════════════════════════════════════════════════════

// reportFileName is the nested document consumed by downstream analysis.
const reportFileName = "usage_report.json"

// JSONWriter renders the full nested report as a single document.
type JSONWriter struct {
	outputDir string
	logger    *slog.Logger
}

// NewJSONWriter creates a writer rooted at the given output directory.
func NewJSONWriter(outputDir string, logger *slog.Logger) *JSONWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONWriter{outputDir: outputDir, logger: logger}
}

// Write renders the report, replacing any previous document atomically via
// a rename so readers never observe a half-written file.
func (w *JSONWriter) Write(ctx context.Context, r *export.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "creating output directory", err)
	}

	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "encoding report", err)
	}

	path := filepath.Join(w.outputDir, reportFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "writing report document", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "replacing report document", err)
	}

	w.logger.Info("json report written",
		slog.String("path", path),
		slog.Int("bytes", len(payload)))
	return nil
}
