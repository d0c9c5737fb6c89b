package cargo

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsActiveForOptionality(t *testing.T) {
	linux := []string{"x86_64-unknown-linux-gnu"}

	t.Run("non optional is always active", func(t *testing.T) {
		dep := IndexCrateDependency{Name: "serde", Req: "1.0"}
		assert.True(t, dep.IsActiveFor(linux, nil))
	})

	t.Run("optional without matching feature is inactive", func(t *testing.T) {
		dep := IndexCrateDependency{Name: "serde", Req: "1.0", Optional: true}
		assert.False(t, dep.IsActiveFor(linux, []string{"std", "rc"}))
	})

	t.Run("dep prefix activates", func(t *testing.T) {
		dep := IndexCrateDependency{Name: "serde", Req: "1.0", Optional: true}
		assert.True(t, dep.IsActiveFor(linux, []string{"dep:serde"}))
	})

	t.Run("transitive feature activates", func(t *testing.T) {
		dep := IndexCrateDependency{Name: "serde", Req: "1.0", Optional: true}
		assert.True(t, dep.IsActiveFor(linux, []string{"serde/derive"}))
	})

	t.Run("weak feature does not activate", func(t *testing.T) {
		dep := IndexCrateDependency{Name: "serde", Req: "1.0", Optional: true}
		assert.False(t, dep.IsActiveFor(linux, []string{"serde?/derive"}))
	})

	t.Run("dep prefix must match exactly", func(t *testing.T) {
		dep := IndexCrateDependency{Name: "serde", Req: "1.0", Optional: true}
		assert.False(t, dep.IsActiveFor(linux, []string{"dep:serde_json"}))
	})
}

func TestIsActiveForRenamed(t *testing.T) {
	// Published as optional dependency "serde" aliased to the local name "ser".
	dep := CrateMetadataDependency{
		Name:               "serde",
		VersionReq:         "1.0",
		Optional:           true,
		ExplicitNameInToml: strptr("ser"),
	}
	index := dep.IndexDependency()

	targets := []string{"x86_64-unknown-linux-gnu"}
	assert.False(t, index.IsActiveFor(targets, nil))
	assert.False(t, index.IsActiveFor(targets, []string{"dep:ser"}), "activation is keyed by the real crate name")
	assert.True(t, index.IsActiveFor(targets, []string{"dep:serde"}))
	assert.True(t, index.IsActiveFor(targets, []string{"serde/derive"}))
}

func TestIsActiveForPlainTarget(t *testing.T) {
	dep := IndexCrateDependency{
		Name:   "winapi",
		Req:    "0.3",
		Target: strptr("x86_64-pc-windows-msvc"),
	}

	assert.True(t, dep.IsActiveFor([]string{"x86_64-pc-windows-msvc"}, nil))
	assert.False(t, dep.IsActiveFor([]string{"x86_64-unknown-linux-gnu"}, nil))
	assert.False(t, dep.IsActiveFor(nil, nil))
}

func TestIsActiveForCfgTarget(t *testing.T) {
	linux := []string{"x86_64-unknown-linux-gnu"}
	windows := []string{"x86_64-pc-windows-msvc"}

	tests := []struct {
		name    string
		target  string
		targets []string
		want    bool
	}{
		{"cfg windows on windows", `cfg(windows)`, windows, true},
		{"cfg windows on linux", `cfg(windows)`, linux, false},
		{"cfg unix on linux", `cfg(unix)`, linux, true},
		{"cfg unix on windows", `cfg(unix)`, windows, false},
		{"target_os equality", `cfg(target_os = "linux")`, linux, true},
		{"target_os mismatch", `cfg(target_os = "macos")`, linux, false},
		{"not", `cfg(not(windows))`, linux, true},
		{"any", `cfg(any(target_os = "macos", target_os = "linux"))`, linux, true},
		{"all", `cfg(all(unix, target_arch = "x86_64"))`, linux, true},
		{"all failing branch", `cfg(all(unix, target_arch = "aarch64"))`, linux, false},
		{"malformed never matches", `cfg(all(unix,`, linux, false},
		{"one of several triples", `cfg(windows)`, append(append([]string{}, linux...), windows...), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep := IndexCrateDependency{Name: "libc", Req: "0.2", Target: strptr(tt.target)}
			assert.Equal(t, tt.want, dep.IsActiveFor(tt.targets, nil))
		})
	}
}

func TestIsActiveForTargetBeatsFeatures(t *testing.T) {
	dep := IndexCrateDependency{
		Name:     "winapi",
		Req:      "0.3",
		Optional: true,
		Target:   strptr("cfg(windows)"),
	}
	assert.False(t, dep.IsActiveFor([]string{"x86_64-unknown-linux-gnu"}, []string{"dep:winapi"}))
}

func TestTranslateRequirement(t *testing.T) {
	mustVersion := func(s string) *semver.Version {
		v, err := semver.NewVersion(s)
		require.NoError(t, err)
		return v
	}

	tests := []struct {
		req     string
		version string
		want    bool
	}{
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.9.0", true},
		{"1.2.3", "2.0.0", false},
		{"^0.3", "0.3.9", true},
		{"^0.3", "0.4.0", false},
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{"*", "4.5.6", true},
		{">=1.0, <2.0", "1.5.0", true},
		{">=1.0, <2.0", "2.1.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.req+" vs "+tt.version, func(t *testing.T) {
			c, err := TranslateRequirement(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Check(mustVersion(tt.version)))
		})
	}

	t.Run("invalid requirement", func(t *testing.T) {
		_, err := TranslateRequirement(">>nope")
		assert.Error(t, err)
	})
}
