package models

// OwnersQueryResult is the response when listing the owners of a crate.
type OwnersQueryResult struct {
	Users []RegistryUser `json:"users"`
}
