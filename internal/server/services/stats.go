package services

import (
	"context"

	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
)

// StatsService serves registry-wide statistics.
type StatsService struct {
	pool       *dbx.RWPool
	repmanager repomanager.RepositoryManager
}

func NewStatsService(pool *dbx.RWPool, m repomanager.RepositoryManager) *StatsService {
	return &StatsService{pool: pool, repmanager: m}
}

// GetCratesStats aggregates the global statistics inside one read
// transaction, so the totals and the top lists describe the same snapshot.
func (s *StatsService) GetCratesStats(ctx context.Context) (*models.GlobalStats, error) {
	var result *models.GlobalStats
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = s.repmanager.Stats(tx).GetGlobalStats(ctx)
		return err
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return result, nil
}
