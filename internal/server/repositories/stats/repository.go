// Package stats aggregates registry-wide statistics for the web API.
package stats

import (
	"context"

	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

type Repository interface {
	GetGlobalStats(ctx context.Context) (*models.GlobalStats, error)
}
