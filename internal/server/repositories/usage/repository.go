package usage

import (
	"context"

	"github.com/dsemenov/datavault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.Usage) error
	ListByData(ctx context.Context, dataID string, limit int) ([]*models.Usage, error)
}
