package models

// GlobalStats aggregates registry-wide statistics for the web API.
type GlobalStats struct {
	TotalDownloads       int64          `json:"totalDownloads"`
	TotalCrates          int64          `json:"totalCrates"`
	CratesNewest         []CrateVersion `json:"cratesNewest"`
	CratesMostDownloaded []CrateVersion `json:"cratesMostDownloaded"`
	CratesLastUpdated    []CrateVersion `json:"cratesLastUpdated"`
}
