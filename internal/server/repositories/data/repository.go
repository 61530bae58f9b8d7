package data

import (
	"context"

	"github.com/dsemenov/datavault/internal/server/models"
)

// QueryFilter narrows a paginated data listing. AfterSeq is the insertion
// counter of the last record already seen (0 for the first page). Viewer,
// when set, restricts the listing to records that user may read: PUBLIC
// records, their own, and SHARED records listing them.
type QueryFilter struct {
	Type     *models.DataType
	Creator  *string
	Viewer   *string
	AfterSeq int64
	Limit    int
}

type Repository interface {
	Create(ctx context.Context, record *models.Data) error
	GetByID(ctx context.Context, id string) (*models.Data, error)

	// GetByIDForUpdate locks the row until the surrounding transaction
	// ends, serializing concurrent permission updates per identifier.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Data, error)

	UpdatePermissions(ctx context.Context, id string, level models.PermissionLevel, allowedUsers []string) error
	Query(ctx context.Context, filter QueryFilter) ([]*models.Data, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
}
