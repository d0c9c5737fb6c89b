package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/packages"
)

func TestFlush_NothingBuffered(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	r := NewEventRecorder(pool, newFakeRepoManager())

	// No transaction may be opened for an empty buffer.
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestFlush_AggregatesEvents(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeRepoManager()
	r := NewEventRecorder(pool, m)

	base := time.Now()
	r.RecordTokenUse(auth.TokenKindUser, 11, base)
	r.RecordTokenUse(auth.TokenKindUser, 11, base.Add(time.Minute))
	r.RecordDownload("leftpad", "1.0.0")
	r.RecordDownload("leftpad", "1.0.0")
	r.RecordDownload("leftpad", "2.0.0")

	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	// Two uses of the same token collapse into one touch.
	if len(m.t.touched) != 1 || m.t.touched[0] != 11 {
		t.Fatalf("unexpected touches: %+v", m.t.touched)
	}
	if m.p.downloads[versionKey{pkg: "leftpad", vers: "1.0.0"}] != 2 {
		t.Fatalf("downloads of 1.0.0 not aggregated: %+v", m.p.downloads)
	}
	if m.p.downloads[versionKey{pkg: "leftpad", vers: "2.0.0"}] != 1 {
		t.Fatalf("downloads of 2.0.0 missing: %+v", m.p.downloads)
	}

	// The buffer is drained after a successful flush.
	if len(r.tokenUses) != 0 || len(r.downloads) != 0 {
		t.Fatalf("buffer not drained")
	}
}

type failingPackagesRepo struct {
	*fakePackagesRepo
}

func (f *failingPackagesRepo) IncrementDownloadCount(ctx context.Context, name string, version string, by int64) error {
	return errBoom{}
}

type failingRepoManager struct {
	*fakeRepoManager
}

func (m *failingRepoManager) Packages(db dbx.DBTX) packages.Repository {
	return &failingPackagesRepo{fakePackagesRepo: m.fakeRepoManager.p}
}

func TestFlush_RestoresBufferOnFailure(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	// The workload fails, so the transaction rolls back.
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &failingRepoManager{fakeRepoManager: newFakeRepoManager()}
	r := NewEventRecorder(pool, m)

	r.RecordDownload("leftpad", "1.0.0")

	if err := r.Flush(context.Background()); err == nil {
		t.Fatalf("want a flush error")
	}

	// Events survive the failed flush.
	if len(r.downloads) != 1 || r.downloads[0].Package != "leftpad" {
		t.Fatalf("events were lost: %+v", r.downloads)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
