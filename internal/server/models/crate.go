package models

import (
	"time"

	"github.com/dmitrijs2005/cargohold/internal/cargo"
)

// Package is the per-crate row, shared by every version of the crate.
type Package struct {
	Name         string
	Description  string
	IsDeprecated bool
}

// CrateVersion identifies one version of one crate.
type CrateVersion struct {
	Package string `json:"package"`
	Version string `json:"version"`
}

// VersionRow is one stored version as the repository returns it, with the
// index record still serialized.
type VersionRow struct {
	Version         string
	IndexData       string
	Upload          time.Time
	UploadedBy      RegistryUser
	DownloadCount   int64
	DepsLastCheck   time.Time
	DepsHasOutdated bool
	Yanked          bool
}

// SearchRow is one candidate crate from a search query.
type SearchRow struct {
	Name         string
	Description  string
	IsDeprecated bool
}

// CrateInfo is the full description of a crate for the web API.
type CrateInfo struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	IsDeprecated bool               `json:"isDeprecated"`
	Versions     []CrateInfoVersion `json:"versions"`
}

// CrateInfoVersion is one version inside a CrateInfo.
type CrateInfoVersion struct {
	Index           *cargo.IndexCrateMetadata `json:"index"`
	Upload          time.Time                 `json:"upload"`
	UploadedBy      RegistryUser              `json:"uploadedBy"`
	DownloadCount   int64                     `json:"downloadCount"`
	DepsLastCheck   time.Time                 `json:"depsLastCheck"`
	DepsHasOutdated bool                      `json:"depsHasOutdated"`
}
