package cargo

import "strings"

// IndexCrateMetadata is the durable index record for one published version.
// Once written, name, vers and cksum never change; only the yanked flag may
// be flipped by an explicit yank or unyank.
type IndexCrateMetadata struct {
	Name string `json:"name"`
	// Vers is a full semantic version.
	Vers string `json:"vers"`
	// Deps are the direct dependencies of this version.
	Deps []IndexCrateDependency `json:"deps"`
	// Cksum is the hex SHA-256 digest of the .crate archive.
	Cksum string `json:"cksum"`
	// Features holds features expressed in the legacy syntax. Records written
	// by this registry keep it empty and use Features2 instead.
	Features map[string][]string `json:"features"`
	Yanked   bool                `json:"yanked"`
	Links    *string             `json:"links"`
	// V is the schema version of this entry; nil reads as 1. Records written
	// by this registry always carry 2.
	V *uint32 `json:"v"`
	// Features2 holds the feature map with extended syntax allowed, i.e.
	// namespaced ("dep:serde") and weak ("serde?/derive") entries.
	Features2   map[string][]string `json:"features2"`
	RustVersion *string             `json:"rust_version"`
}

// SchemaVersion resolves the schema version, defaulting to 1 when unset.
func (m *IndexCrateMetadata) SchemaVersion() uint32 {
	if m.V == nil {
		return 1
	}
	return *m.V
}

// GetFeature looks a feature up, preferring the extended map over the legacy
// one. The second return is false when the feature is not defined at all.
func (m *IndexCrateMetadata) GetFeature(feature string) ([]string, bool) {
	if list, ok := m.Features2[feature]; ok {
		return list, true
	}
	list, ok := m.Features[feature]
	return list, ok
}

// IndexCrateDependency is the durable form of a dependency. The publisher's
// name/explicit_name_in_toml pair is normalized so that Name is always the
// identifier used in the dependent's manifest and Package, when present, is
// the real crate name behind a rename.
type IndexCrateDependency struct {
	Name string `json:"name"`
	// Req is the semver requirement for this dependency.
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	// Target restricts the dependency to a platform, either a plain target
	// triple or a "cfg(...)" expression. Null when unrestricted.
	Target *string        `json:"target"`
	Kind   DependencyKind `json:"kind"`
	// Registry is the index URL of the source registry; null means this one.
	Registry *string `json:"registry"`
	// Package is the original crate name when the dependency is renamed.
	Package *string `json:"package"`
}

// IndexDependency normalizes the publisher form into the index form.
func (d *CrateMetadataDependency) IndexDependency() IndexCrateDependency {
	name := d.Name
	var pkg *string
	if d.ExplicitNameInToml != nil {
		name = *d.ExplicitNameInToml
		orig := d.Name
		pkg = &orig
	}
	return IndexCrateDependency{
		Name:            name,
		Req:             d.VersionReq,
		Features:        d.Features,
		Optional:        d.Optional,
		DefaultFeatures: d.DefaultFeatures,
		Target:          d.Target,
		Kind:            d.Kind.orNormal(),
		Registry:        d.Registry,
		Package:         pkg,
	}
}

// IndexPathFor returns the relative path of a crate's index file, following
// the layout cargo expects: 1/{name}, 2/{name}, 3/{first letter}/{name} and
// {first two}/{next two}/{name}. File names are lowercased.
func IndexPathFor(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return "1/" + lower
	case 2:
		return "2/" + lower
	case 3:
		return "3/" + lower[:1] + "/" + lower
	default:
		return lower[:2] + "/" + lower[2:4] + "/" + lower
	}
}

// IndexConfig is the config.json document at the root of a sparse index. It
// tells cargo where to download crates and where the web API lives.
type IndexConfig struct {
	DL           string `json:"dl"`
	API          string `json:"api"`
	AuthRequired bool   `json:"auth-required"`
}
