package cargo

import (
	"fmt"
	"strings"
)

// The cfg() target predicate grammar, as cargo defines it for dependency
// tables:
//
//	expr  := "all" "(" expr,* ")"
//	       | "any" "(" expr,* ")"
//	       | "not" "(" expr ")"
//	       | pred
//	pred  := ident | ident "=" '"' value '"'
//
// Evaluation runs against the attributes derived from a target triple. A bare
// ident matches the target family, so cfg(unix) and cfg(windows) behave as
// cargo users expect; other bare idents such as cfg(test) never match a
// triple. An ident with a value compares against the attribute of that name,
// with unknown attributes evaluating to the empty string.

type cfgOp int

const (
	cfgOpPred cfgOp = iota
	cfgOpAll
	cfgOpAny
	cfgOpNot
)

type cfgExpr struct {
	op       cfgOp
	children []cfgExpr
	key      string
	value    string
	hasValue bool
}

func (e *cfgExpr) eval(attrs map[string]string) bool {
	switch e.op {
	case cfgOpAll:
		for i := range e.children {
			if !e.children[i].eval(attrs) {
				return false
			}
		}
		return true
	case cfgOpAny:
		for i := range e.children {
			if e.children[i].eval(attrs) {
				return true
			}
		}
		return false
	case cfgOpNot:
		return !e.children[0].eval(attrs)
	default:
		if e.hasValue {
			return attrs[e.key] == e.value
		}
		return attrs["target_family"] == e.key
	}
}

type cfgParser struct {
	input string
	pos   int
}

// parseCfgExpr parses the body of a cfg() spec, without the surrounding
// "cfg(" and ")".
func parseCfgExpr(s string) (*cfgExpr, error) {
	p := &cfgParser{input: s}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected trailing input at offset %d", p.pos)
	}
	return &expr, nil
}

func (p *cfgParser) parseExpr() (cfgExpr, error) {
	p.skipSpace()
	ident := p.readIdent()
	if ident == "" {
		return cfgExpr{}, fmt.Errorf("expected identifier at offset %d", p.pos)
	}
	p.skipSpace()

	if p.peek() == '(' {
		switch ident {
		case "all", "any":
			children, err := p.parseList()
			if err != nil {
				return cfgExpr{}, err
			}
			op := cfgOpAll
			if ident == "any" {
				op = cfgOpAny
			}
			return cfgExpr{op: op, children: children}, nil
		case "not":
			p.pos++
			child, err := p.parseExpr()
			if err != nil {
				return cfgExpr{}, err
			}
			p.skipSpace()
			if p.peek() != ')' {
				return cfgExpr{}, fmt.Errorf("expected ) at offset %d", p.pos)
			}
			p.pos++
			return cfgExpr{op: cfgOpNot, children: []cfgExpr{child}}, nil
		default:
			return cfgExpr{}, fmt.Errorf("unknown operator %q", ident)
		}
	}

	if p.peek() == '=' {
		p.pos++
		p.skipSpace()
		value, err := p.readString()
		if err != nil {
			return cfgExpr{}, err
		}
		return cfgExpr{op: cfgOpPred, key: ident, value: value, hasValue: true}, nil
	}

	return cfgExpr{op: cfgOpPred, key: ident}, nil
}

// parseList consumes a parenthesized, comma-separated expression list.
func (p *cfgParser) parseList() ([]cfgExpr, error) {
	p.pos++ // consume (
	var children []cfgExpr
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			return children, nil
		}
		child, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return nil, fmt.Errorf("expected , or ) at offset %d", p.pos)
		}
	}
}

func (p *cfgParser) readIdent() string {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

func (p *cfgParser) readString() (string, error) {
	if p.peek() != '"' {
		return "", fmt.Errorf("expected string at offset %d", p.pos)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.input) {
		if p.input[p.pos] == '"' {
			s := p.input[start:p.pos]
			p.pos++
			return s, nil
		}
		p.pos++
	}
	return "", fmt.Errorf("unterminated string at offset %d", start)
}

func (p *cfgParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *cfgParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

var unixFamilies = map[string]bool{
	"linux": true, "macos": true, "ios": true, "tvos": true, "watchos": true,
	"android": true, "freebsd": true, "netbsd": true, "openbsd": true,
	"dragonfly": true, "solaris": true, "illumos": true, "emscripten": true,
	"haiku": true, "redox": true,
}

var knownVendors = map[string]bool{
	"unknown": true, "pc": true, "apple": true, "sun": true, "nvidia": true,
	"sony": true, "fortanix": true, "uwp": true, "wrs": true, "ibm": true,
	"esp": true, "none": true,
}

// targetAttributes derives cfg attributes from a target triple. The mapping
// covers the mainstream triples; unrecognized components are carried through
// verbatim so that exact-match predicates on them still work.
func targetAttributes(triple string) map[string]string {
	attrs := map[string]string{}
	parts := strings.Split(triple, "-")
	if parts[0] == "" {
		return attrs
	}

	arch := parts[0]
	attrs["target_arch"] = normalizeArch(arch)
	attrs["target_pointer_width"] = pointerWidth(arch)

	var vendor, os, env string
	switch {
	case len(parts) >= 4:
		vendor, os, env = parts[1], parts[2], parts[3]
	case len(parts) == 3:
		if knownVendors[parts[1]] {
			vendor, os = parts[1], parts[2]
		} else {
			os, env = parts[1], parts[2]
		}
	case len(parts) == 2:
		os = parts[1]
	}

	if os == "darwin" {
		os = "macos"
	}
	if strings.HasPrefix(env, "android") {
		// arm-linux-androideabi and friends put the OS in the env slot
		os, env = "android", ""
	}
	if strings.HasPrefix(os, "windows") {
		os = "windows"
	}

	attrs["target_os"] = os
	attrs["target_vendor"] = vendor
	attrs["target_env"] = normalizeEnv(env)

	switch {
	case os == "windows":
		attrs["target_family"] = "windows"
	case unixFamilies[os]:
		attrs["target_family"] = "unix"
	case strings.HasPrefix(arch, "wasm"):
		attrs["target_family"] = "wasm"
	}
	return attrs
}

func normalizeArch(arch string) string {
	switch {
	case arch == "i686" || arch == "i586" || arch == "i386":
		return "x86"
	case strings.HasPrefix(arch, "armv") || arch == "arm" || strings.HasPrefix(arch, "thumbv"):
		return "arm"
	case strings.HasPrefix(arch, "riscv64"):
		return "riscv64"
	case strings.HasPrefix(arch, "riscv32"):
		return "riscv32"
	case strings.HasPrefix(arch, "powerpc64"):
		return "powerpc64"
	default:
		return arch
	}
}

func pointerWidth(arch string) string {
	switch arch {
	case "s390x":
		return "64"
	case "sparcv9":
		return "64"
	}
	if strings.Contains(arch, "64") {
		return "64"
	}
	return "32"
}

func normalizeEnv(env string) string {
	switch {
	case strings.HasPrefix(env, "gnu"):
		return "gnu"
	case strings.HasPrefix(env, "musl"):
		return "musl"
	case strings.HasPrefix(env, "eabi"):
		return ""
	default:
		return env
	}
}
