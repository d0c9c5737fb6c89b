package cargo

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PackageName returns the real crate name of this dependency, resolving a
// rename back to the original package identity.
func (d *IndexCrateDependency) PackageName() string {
	if d.Package != nil {
		return *d.Package
	}
	return d.Name
}

// IsActiveFor reports whether this dependency is active for the given target
// platforms and enabled features.
//
// A target restriction is checked first: a plain target string must appear in
// activeTargets, a "cfg(...)" expression must evaluate to true for at least
// one of them. A malformed expression never matches. Past the target filter a
// non-optional dependency is always active; an optional one is active only
// when some enabled feature names it, either as "dep:<name>" exactly or as
// the "<name>/..." prefix of a transitive feature. The weak form "<name>?/..."
// does not activate the dependency, which falls out of the exact prefix
// comparison. Names are matched against PackageName.
func (d *IndexCrateDependency) IsActiveFor(activeTargets []string, activeFeatures []string) bool {
	if d.Target != nil {
		spec := *d.Target
		if expr, ok := strings.CutPrefix(spec, "cfg("); ok {
			if !matchesCfg(expr, activeTargets) {
				return false
			}
		} else if !slices.Contains(activeTargets, spec) {
			return false
		}
	}
	if !d.Optional {
		return true
	}
	name := d.PackageName()
	for _, feature := range activeFeatures {
		if suffix, ok := strings.CutPrefix(feature, "dep:"); ok && suffix == name {
			return true
		}
		if i := strings.IndexByte(feature, '/'); i >= 0 && feature[:i] == name {
			return true
		}
	}
	return false
}

// matchesCfg evaluates the body of a "cfg(...)" target spec against each
// active target triple. expr still carries the closing parenthesis.
func matchesCfg(expr string, activeTargets []string) bool {
	body, ok := strings.CutSuffix(expr, ")")
	if !ok {
		return false
	}
	node, err := parseCfgExpr(body)
	if err != nil {
		return false
	}
	for _, triple := range activeTargets {
		if node.eval(targetAttributes(triple)) {
			return true
		}
	}
	return false
}

// TranslateRequirement parses a cargo version requirement into a constraint
// set. Cargo treats a bare version as a caret requirement, so "1.2.3" is
// rewritten to "^1.2.3" before parsing; operators and wildcards pass through.
func TranslateRequirement(req string) (*semver.Constraints, error) {
	parts := strings.Split(req, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && part[0] >= '0' && part[0] <= '9' && !strings.Contains(part, "*") {
			part = "^" + part
		}
		parts[i] = part
	}
	c, err := semver.NewConstraint(strings.Join(parts, ", "))
	if err != nil {
		return nil, fmt.Errorf("invalid version requirement %q: %w", req, err)
	}
	return c, nil
}
