// Package cargo implements the protocol data model of the registry: the
// publisher-supplied crate metadata, the binary upload envelope, the durable
// index records served to package-manager clients, and the dependency
// activation rules used when walking those records.
//
// The types mirror the JSON schemas that cargo itself produces and consumes,
// so struct tags follow the wire names rather than Go conventions.
package cargo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
)

// DependencyKind classifies a dependency as "normal", "dev" or "build".
type DependencyKind string

const (
	DependencyKindNormal DependencyKind = "normal"
	DependencyKindDev    DependencyKind = "dev"
	DependencyKindBuild  DependencyKind = "build"
)

// ParseDependencyKind converts a wire string into a DependencyKind.
func ParseDependencyKind(s string) (DependencyKind, error) {
	switch DependencyKind(s) {
	case DependencyKindNormal, DependencyKindDev, DependencyKindBuild:
		return DependencyKind(s), nil
	default:
		return "", fmt.Errorf("unknown dependency kind %q", s)
	}
}

// UnmarshalJSON rejects unknown kinds and treats null as "normal",
// matching how cargo emits publish metadata.
func (k *DependencyKind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = DependencyKindNormal
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseDependencyKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// orNormal resolves the zero value to the default kind. The kind field may be
// absent entirely from publish metadata.
func (k DependencyKind) orNormal() DependencyKind {
	if k == "" {
		return DependencyKindNormal
	}
	return k
}

// CrateMetadata is the manifest data a publisher sends for one crate version.
type CrateMetadata struct {
	// Name of the crate being published.
	Name string `json:"name"`
	// Version of the crate, a full semantic version.
	Vers string `json:"vers"`
	// Direct dependencies declared in the manifest.
	Deps []CrateMetadataDependency `json:"deps"`
	// Features defined by the crate. Each feature maps to the list of
	// features or dependencies it enables.
	Features map[string][]string `json:"features"`
	// Authors may be empty.
	Authors       []string `json:"authors"`
	Description   *string  `json:"description"`
	Documentation *string  `json:"documentation"`
	Homepage      *string  `json:"homepage"`
	// Readme is the content of the README file, ReadmeFile its relative path.
	Readme     *string  `json:"readme"`
	ReadmeFile *string  `json:"readme_file"`
	Keywords   []string `json:"keywords"`
	Categories []string `json:"categories"`
	// License is an SPDX expression, LicenseFile a relative path to a file
	// shipped in the crate.
	License     *string `json:"license"`
	LicenseFile *string `json:"license_file"`
	Repository  *string `json:"repository"`
	// Badges is kept as raw JSON; the registry stores but does not interpret it.
	Badges map[string]json.RawMessage `json:"badges"`
	// Links is the native library this crate links against, if any.
	Links *string `json:"links"`
	// RustVersion is the minimal supported toolchain version. When present it
	// must be a bare version without an operator.
	RustVersion *string `json:"rust_version"`
}

// CrateMetadataDependency is one dependency as declared by the publisher.
type CrateMetadataDependency struct {
	// Name of the dependency. If the dependency is renamed from the original
	// package name, this is the original name and the new name is stored in
	// ExplicitNameInToml.
	Name string `json:"name"`
	// VersionReq is the semver requirement for this dependency.
	VersionReq string `json:"version_req"`
	// Features enabled for this dependency.
	Features []string `json:"features"`
	// Optional is true for dependencies behind a feature gate.
	Optional bool `json:"optional"`
	// DefaultFeatures is true when the dependency's default features are kept.
	DefaultFeatures bool `json:"default_features"`
	// Target restricts the dependency to a platform, either a plain target
	// triple or a "cfg(...)" expression. Null when unrestricted.
	Target *string `json:"target"`
	// Kind is "normal", "dev" or "build".
	Kind DependencyKind `json:"kind"`
	// Registry is the index URL of the registry this dependency comes from.
	// Null means the current registry.
	Registry *string `json:"registry"`
	// ExplicitNameInToml is set when the dependency is renamed in the
	// manifest; it holds the new local name.
	ExplicitNameInToml *string `json:"explicit_name_in_toml"`
}

// Validate checks the metadata and returns the warnings to report to the
// publisher. All failures carry an InvalidRequest class.
func (m *CrateMetadata) Validate() (*CrateUploadResult, error) {
	if err := m.validateName(); err != nil {
		return nil, err
	}
	if err := m.validateVersion(); err != nil {
		return nil, err
	}
	if err := m.validateRustVersion(); err != nil {
		return nil, err
	}
	return NewCrateUploadResult(), nil
}

func (m *CrateMetadata) validateName() error {
	if m.Name == "" {
		return validationError("Name must not be empty")
	}
	if len(m.Name) > 64 {
		return validationError("Name must not exceed 64 characters")
	}
	for i, c := range m.Name {
		if i == 0 {
			if !isASCIIAlpha(c) {
				return validationError("Name must start with an ASCII letter")
			}
			continue
		}
		if !isASCIIAlphanumeric(c) && c != '-' && c != '_' {
			return validationError("Name must only contain alphanumeric, -, _")
		}
	}
	return nil
}

func (m *CrateMetadata) validateVersion() error {
	if _, err := semver.StrictNewVersion(m.Vers); err != nil {
		return validationError("Version must be a valid semantic version")
	}
	return nil
}

func (m *CrateMetadata) validateRustVersion() error {
	if m.RustVersion == nil {
		return nil
	}
	parts := strings.Split(*m.RustVersion, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return validationError("rust_version must be a bare version with two or three components")
	}
	for _, part := range parts {
		if part == "" {
			return validationError("rust_version must be a bare version with two or three components")
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return validationError("rust_version must not contain an operator")
			}
		}
	}
	return nil
}

func validationError(details string) error {
	return apierror.Specialize(apierror.InvalidRequest(), details)
}

func isASCIIAlpha(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isASCIIAlphanumeric(c rune) bool {
	return isASCIIAlpha(c) || (c >= '0' && c <= '9')
}
