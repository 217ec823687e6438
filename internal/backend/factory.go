package backend

import (
	"context"
	"fmt"
	"log/slog"

	flog "finboard/internal/log"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new source factory
func NewFactory(logger *slog.Logger) Factory {
	return &DefaultFactory{
		logger: flog.WithComponent(logger, flog.ComponentSheets),
	}
}

// CreateSource implements Factory.CreateSource
func (f *DefaultFactory) CreateSource(ctx context.Context, config Config) (*SourceResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsSource:
		return f.createSheetsSource(ctx, config)
	case CSVSource:
		return f.createCSVSource(config)
	case MemorySource:
		return f.createMemorySource(config)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsSource(ctx context.Context, config Config) (*SourceResult, error) {
	cli, err := gsheet.New(ctx, config.SheetID, gsheet.Credentials{
		JSON: config.GoogleServiceAccountJSON,
		File: config.GoogleServiceAccountFile,

		OAuthClientJSON: config.GoogleOAuthClientJSON,
		OAuthClientFile: config.GoogleOAuthClientFile,
		OAuthTokenJSON:  config.GoogleOAuthTokenJSON,
		OAuthTokenFile:  config.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets source")
	return &SourceResult{Reader: cli, Name: SheetsSource.String()}, nil
}

func (f *DefaultFactory) createCSVSource(config Config) (*SourceResult, error) {
	f.logger.Info("Initialized CSV export source")
	return &SourceResult{
		Reader: gsheet.NewCSVExport(config.SheetID, nil),
		Name:   CSVSource.String(),
	}, nil
}

func (f *DefaultFactory) createMemorySource(config Config) (*SourceResult, error) {
	if config.FixturesDir == "" {
		f.logger.Info("Initialized memory source with sample workbook")
		return &SourceResult{Reader: memory.Sample(), Name: "sample"}, nil
	}

	f.logger.Info("Initialized memory source", "fixtures_dir", config.FixturesDir)
	return &SourceResult{
		Reader: memory.NewFromDir(config.FixturesDir),
		Name:   MemorySource.String(),
	}, nil
}
