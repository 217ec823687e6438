package backend

import (
	"context"

	"finboard/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// SourceResult contains the workbook reader and optional cleanup function
type SourceResult struct {
	Reader  sheets.SheetReader
	Name    string // recorded in batch metadata
	Cleanup CleanupFunc
}

// Factory creates workbook readers based on configuration
type Factory interface {
	CreateSource(ctx context.Context, config Config) (*SourceResult, error)
}

// Config holds configuration for source creation
type Config struct {
	Type SourceType

	// Sheets API and CSV export
	SheetID                  string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenJSON     string
	GoogleOAuthTokenFile     string

	// Memory source; empty means the built-in sample workbook
	FixturesDir string
}

// SourceType represents the type of workbook source
type SourceType string

const (
	SheetsSource SourceType = "sheets"
	CSVSource    SourceType = "csv"
	MemorySource SourceType = "memory"
)

// String implements fmt.Stringer
func (st SourceType) String() string {
	return string(st)
}

// IsValid returns true if the source type is valid
func (st SourceType) IsValid() bool {
	switch st {
	case SheetsSource, CSVSource, MemorySource:
		return true
	default:
		return false
	}
}
