package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

func TestGetCratesStats_Success(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeRepoManager()
	m.s.result = &models.GlobalStats{
		TotalCrates:    3,
		TotalDownloads: 120,
		CratesNewest:   []models.CrateVersion{{Package: "leftpad", Version: "0.1.0"}},
	}
	s := NewStatsService(pool, m)

	got, err := s.GetCratesStats(context.Background())
	if err != nil {
		t.Fatalf("GetCratesStats error: %v", err)
	}
	if got.TotalCrates != 3 || got.TotalDownloads != 120 || len(got.CratesNewest) != 1 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestGetCratesStats_BackendFailure(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := newFakeRepoManager()
	m.s.err = errBoom{}
	s := NewStatsService(pool, m)

	_, err := s.GetCratesStats(context.Background())
	if got := apiStatus(t, err); got != 500 {
		t.Fatalf("want 500, got %d: %v", got, err)
	}
}
