package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/cargo"
	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/config"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cargohold/internal/server/storage"
)

// searchResultsLimit caps how many crates one search query returns.
const searchResultsLimit = 20

// CratesService implements the crate lifecycle: publication, yanking,
// downloads, search, crate info and the sparse index documents.
type CratesService struct {
	pool       *dbx.RWPool
	repmanager repomanager.RepositoryManager
	storage    storage.Storage
	recorder   *EventRecorder
	publicURL  string
}

func NewCratesService(pool *dbx.RWPool, m repomanager.RepositoryManager, store storage.Storage, recorder *EventRecorder, cfg *config.Config) *CratesService {
	return &CratesService{
		pool:       pool,
		repmanager: m,
		storage:    store,
		recorder:   recorder,
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
	}
}

// Publish runs the full publication pipeline: decode the upload envelope,
// validate the metadata, derive the index record and persist everything
// inside one write transaction. The first publish of a crate creates it and
// makes the publisher an owner; later publishes require ownership. The
// archive is stored before the transaction commits, so a storage failure
// leaves no rows behind.
func (s *CratesService) Publish(ctx context.Context, authn auth.Authentication, payload []byte) (*cargo.CrateUploadResult, error) {
	if err := authn.CheckCanWrite(); err != nil {
		return nil, asAPIError(err)
	}
	uid, err := authn.UID()
	if err != nil {
		return nil, asAPIError(err)
	}

	upload, err := cargo.ParseCrateUploadData(payload)
	if err != nil {
		return nil, asAPIError(err)
	}
	result, err := upload.Metadata.Validate()
	if err != nil {
		return nil, asAPIError(err)
	}

	index := upload.BuildIndexData()
	indexData, err := json.Marshal(index)
	if err != nil {
		return nil, apierror.FromBackend(err)
	}

	description := ""
	if upload.Metadata.Description != nil {
		description = *upload.Metadata.Description
	}

	err = s.pool.RunInWriteTransaction(ctx, "publish_crate", func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := s.repmanager.Users(tx)
		packagesRepo := s.repmanager.Packages(tx)

		created, err := packagesRepo.EnsurePackage(ctx, index.Name, description)
		if err != nil {
			return err
		}
		if created {
			if err := packagesRepo.AddOwner(ctx, index.Name, uid); err != nil {
				return err
			}
		} else if err := checkIsCrateManager(ctx, usersRepo, packagesRepo, uid, index.Name); err != nil {
			return err
		}

		exists, err := packagesRepo.VersionExists(ctx, index.Name, index.Vers)
		if err != nil {
			return err
		}
		if exists {
			return apierror.Specialize(apierror.Conflict(), "this version of the crate already exists")
		}

		if err := packagesRepo.InsertVersion(ctx, index.Name, index.Vers, string(indexData), uid, time.Now()); err != nil {
			return err
		}

		// Inside the transaction so a storage failure rolls the rows back.
		if err := s.storage.Store(ctx, index.Name, index.Vers, upload.Content); err != nil {
			return apierror.FromBackend(err)
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return result, nil
}

// Yank marks a version as not to be selected by dependency resolution.
func (s *CratesService) Yank(ctx context.Context, authn auth.Authentication, name string, version string) (*cargo.YesNoResult, error) {
	return s.setYanked(ctx, authn, name, version, true, "yank_crate")
}

// Unyank makes a yanked version selectable again.
func (s *CratesService) Unyank(ctx context.Context, authn auth.Authentication, name string, version string) (*cargo.YesNoResult, error) {
	return s.setYanked(ctx, authn, name, version, false, "unyank_crate")
}

// setYanked flips only the yank flag of the stored index record; cksum, name
// and vers are never touched.
func (s *CratesService) setYanked(ctx context.Context, authn auth.Authentication, name string, version string, yanked bool, operation string) (*cargo.YesNoResult, error) {
	if err := authn.CheckCanWrite(); err != nil {
		return nil, asAPIError(err)
	}
	uid, err := authn.UID()
	if err != nil {
		return nil, asAPIError(err)
	}

	err = s.pool.RunInWriteTransaction(ctx, operation, func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := s.repmanager.Users(tx)
		packagesRepo := s.repmanager.Packages(tx)

		if err := checkIsCrateManager(ctx, usersRepo, packagesRepo, uid, name); err != nil {
			return err
		}

		row, err := packagesRepo.GetVersion(ctx, name, version)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "this version of the crate does not exist")
			}
			return err
		}

		var index cargo.IndexCrateMetadata
		if err := json.Unmarshal([]byte(row.IndexData), &index); err != nil {
			return apierror.FromBackend(err)
		}
		index.Yanked = yanked
		indexData, err := json.Marshal(&index)
		if err != nil {
			return apierror.FromBackend(err)
		}

		return packagesRepo.SetYanked(ctx, name, version, yanked, string(indexData))
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return cargo.NewYesNoResult(), nil
}

// Download returns the archive bytes of one version. The download is counted
// through the event recorder, so the read path stays free of writes.
func (s *CratesService) Download(ctx context.Context, name string, version string) ([]byte, error) {
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		exists, err := s.repmanager.Packages(tx).VersionExists(ctx, name, version)
		if err != nil {
			return err
		}
		if !exists {
			return apierror.Specialize(apierror.NotFound(), "this version of the crate does not exist")
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	data, err := s.storage.Fetch(ctx, name, version)
	if err != nil {
		return nil, apierror.FromBackend(err)
	}

	s.recorder.RecordDownload(name, version)
	return data, nil
}

// GetInfo returns the crate's description and all its versions with their
// parsed index records.
func (s *CratesService) GetInfo(ctx context.Context, name string) (*models.CrateInfo, error) {
	var info *models.CrateInfo
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		packagesRepo := s.repmanager.Packages(tx)

		pkg, err := packagesRepo.GetPackage(ctx, name)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "this crate does not exist")
			}
			return err
		}
		rows, err := packagesRepo.ListVersions(ctx, name)
		if err != nil {
			return err
		}

		versions := make([]models.CrateInfoVersion, 0, len(rows))
		for _, row := range rows {
			var index cargo.IndexCrateMetadata
			if err := json.Unmarshal([]byte(row.IndexData), &index); err != nil {
				return apierror.FromBackend(err)
			}
			versions = append(versions, models.CrateInfoVersion{
				Index:           &index,
				Upload:          row.Upload,
				UploadedBy:      row.UploadedBy,
				DownloadCount:   row.DownloadCount,
				DepsLastCheck:   row.DepsLastCheck,
				DepsHasOutdated: row.DepsHasOutdated,
			})
		}

		info = &models.CrateInfo{
			Name:         pkg.Name,
			Description:  pkg.Description,
			IsDeprecated: pkg.IsDeprecated,
			Versions:     versions,
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return info, nil
}

// Search matches crate names by substring and reports each match with its
// highest non-yanked version.
func (s *CratesService) Search(ctx context.Context, query string) (*cargo.SearchResults, error) {
	results := &cargo.SearchResults{Crates: []cargo.SearchResultCrate{}}
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		packagesRepo := s.repmanager.Packages(tx)

		rows, total, err := packagesRepo.Search(ctx, query, searchResultsLimit)
		if err != nil {
			return err
		}
		results.Meta.Total = total

		for _, row := range rows {
			records, err := packagesRepo.ListIndexData(ctx, row.Name)
			if err != nil {
				return err
			}
			maxVersion, err := maxNonYankedVersion(records)
			if err != nil {
				return err
			}
			results.Crates = append(results.Crates, cargo.SearchResultCrate{
				Name:         row.Name,
				MaxVersion:   maxVersion,
				IsDeprecated: row.IsDeprecated,
				Description:  row.Description,
			})
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return results, nil
}

// IndexConfig is the config.json document at the root of the sparse index.
func (s *CratesService) IndexConfig() *cargo.IndexConfig {
	return &cargo.IndexConfig{
		DL:           s.publicURL + "/api/v1/crates",
		API:          s.publicURL,
		AuthRequired: true,
	}
}

// GetIndexFile serves one crate's sparse index file: its index records in
// publication order, one JSON object per line. The requested path must match
// the canonical layout for the crate name it ends in.
func (s *CratesService) GetIndexFile(ctx context.Context, path string) ([]byte, error) {
	path = strings.Trim(path, "/")
	name := path[strings.LastIndex(path, "/")+1:]
	if name == "" || cargo.IndexPathFor(name) != path {
		return nil, apierror.Specialize(apierror.NotFound(), "no crate index at this path")
	}

	var records []string
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		records, err = s.repmanager.Packages(tx).ListIndexData(ctx, name)
		return err
	})
	if err != nil {
		return nil, asAPIError(err)
	}
	if len(records) == 0 {
		return nil, apierror.Specialize(apierror.NotFound(), "this crate does not exist")
	}

	return []byte(strings.Join(records, "\n") + "\n"), nil
}

// CheckDeps re-resolves every dependency of a stored version that targets
// this registry against the newest non-yanked version available, and persists
// the outcome on the version row.
func (s *CratesService) CheckDeps(ctx context.Context, authn auth.Authentication, name string, version string) (hasOutdated bool, err error) {
	if err := authn.CheckCanWrite(); err != nil {
		return false, asAPIError(err)
	}

	err = s.pool.RunInWriteTransaction(ctx, "check_crate_deps", func(ctx context.Context, tx dbx.DBTX) error {
		packagesRepo := s.repmanager.Packages(tx)

		row, err := packagesRepo.GetVersion(ctx, name, version)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "this version of the crate does not exist")
			}
			return err
		}
		var index cargo.IndexCrateMetadata
		if err := json.Unmarshal([]byte(row.IndexData), &index); err != nil {
			return apierror.FromBackend(err)
		}

		hasOutdated = false
		for i := range index.Deps {
			dep := &index.Deps[i]
			// Dependencies from other registries are outside our index.
			if dep.Registry != nil {
				continue
			}
			records, err := packagesRepo.ListIndexData(ctx, dep.PackageName())
			if err != nil {
				return err
			}
			newest, err := maxNonYankedVersion(records)
			if err != nil || newest == "" {
				continue
			}
			constraint, err := cargo.TranslateRequirement(dep.Req)
			if err != nil {
				continue
			}
			v, err := semver.NewVersion(newest)
			if err != nil {
				continue
			}
			if !constraint.Check(v) {
				hasOutdated = true
			}
		}

		return packagesRepo.SetDepsStatus(ctx, name, version, time.Now(), hasOutdated)
	})
	if err != nil {
		return false, asAPIError(err)
	}

	return hasOutdated, nil
}

// maxNonYankedVersion finds the highest semver among serialized index records
// that are not yanked. Empty when every version is yanked.
func maxNonYankedVersion(records []string) (string, error) {
	var best *semver.Version
	for _, data := range records {
		var index cargo.IndexCrateMetadata
		if err := json.Unmarshal([]byte(data), &index); err != nil {
			return "", apierror.FromBackend(err)
		}
		if index.Yanked {
			continue
		}
		v, err := semver.NewVersion(index.Vers)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", nil
	}
	return best.Original(), nil
}
