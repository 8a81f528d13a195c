package ingest

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/mathadata/usage-insights/internal/domain/institution"
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// Annuaire column names, as published in the open-data directory.
const (
	colDirUAI      = "uai"
	colDirName     = "nom_etablissement"
	colDirCity     = "ville"
	colDirAcademie = "academie"
	colDirType     = "type_etablissement"
	colDirSector   = "secteur"
	colDirIPS      = "ips"
	colDirLat      = "latitude"
	colDirLon      = "longitude"
)

// DirectoryLoader reads the annuaire CSV into an institution directory.
type DirectoryLoader struct {
	path   string
	logger *slog.Logger
}

// NewDirectoryLoader creates a loader for the given annuaire file.
func NewDirectoryLoader(path string, logger *slog.Logger) *DirectoryLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryLoader{path: path, logger: logger}
}

// Directory loads the full lookup table. Rows without a UAI code are
// skipped; blank numeric columns stay nil.
func (l *DirectoryLoader) Directory(ctx context.Context) (*institution.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return nil, shared.WrapError("ingest", "Directory", shared.ErrSourceUnavailable, "reading annuaire", err)
	}

	header, rows, err := parseTable(content)
	if err != nil {
		return nil, shared.WrapError("ingest", "Directory", shared.ErrInvalidFormat, "parsing annuaire", err)
	}

	entries := make([]institution.Info, 0, len(rows))
	for _, row := range rows {
		get := func(col string) string { return cell(header, row, col) }

		code := shared.NormalizeInstitutionCode(get(colDirUAI))
		if !code.IsKnown() {
			continue
		}

		entries = append(entries, institution.Info{
			Code:      code,
			Name:      get(colDirName),
			City:      get(colDirCity),
			Academie:  get(colDirAcademie),
			Type:      get(colDirType),
			Sector:    get(colDirSector),
			IPS:       parseOptionalFloat(get(colDirIPS)),
			Latitude:  parseOptionalFloat(get(colDirLat)),
			Longitude: parseOptionalFloat(get(colDirLon)),
		})
	}

	l.logger.Info("annuaire loaded",
		slog.String("path", l.path),
		slog.Int("institutions", len(entries)))
	return institution.NewDirectory(entries), nil
}

func parseOptionalFloat(raw string) *float64 {
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}
