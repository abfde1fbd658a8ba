package storage

import (
	"context"
	"errors"
	"io"

	"survey-dashboard/models"
)

var (
	// ErrNotFound is returned when no stored response has the requested id.
	ErrNotFound = errors.New("storage: survey response not found")
	// ErrDuplicateID is returned when a new row reuses an existing id.
	ErrDuplicateID = errors.New("storage: duplicate survey response id")
	// ErrNoBoundary is returned when no district boundary was saved.
	ErrNoBoundary = errors.New("storage: no district boundary saved")
)

// ResponseStore is the interface any storage backend for admin-managed
// survey rows must satisfy.
type ResponseStore interface {
	List(ctx context.Context) ([]*models.StoredResponse, error)
	Get(ctx context.Context, id string) (*models.StoredResponse, error)
	// Create assigns ID and CreatedAt when they are empty. A caller-supplied
	// ID already in use fails with ErrDuplicateID.
	Create(ctx context.Context, r *models.StoredResponse) error
	Update(ctx context.Context, id string, answers map[string]string, updatedBy string) error
	Delete(ctx context.Context, id string) error
	// ImportMany stores all rows or none.
	ImportMany(ctx context.Context, rows []*models.StoredResponse) (int, error)
	Close() error
}

// BoundaryStore keeps the electoral district outline as a GeoJSON document.
type BoundaryStore interface {
	SaveBoundary(ctx context.Context, doc []byte) error
	LoadBoundary(ctx context.Context) ([]byte, error)
	DeleteBoundary(ctx context.Context) error
}

// RecordExporter serialises survey records into a downloadable format.
type RecordExporter interface {
	Export(w io.Writer, records []models.SurveyRecord) error
	ContentType() string
	Extension() string
}
