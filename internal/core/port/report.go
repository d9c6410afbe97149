package port

import (
	"context"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

// RecordUploadStatus is the per-record outcome of a report upload.
type RecordUploadStatus struct {
	Record domain.ReportRecord
	Err    error
}

// ReportUploader pushes daily generation records to the PV tracking
// service.
type ReportUploader interface {
	Upload(ctx context.Context, systemId string, records []domain.ReportRecord) ([]RecordUploadStatus, error)
}
