package quadapk

import (
	"fmt"
	"path/filepath"
	"strings"
)

// rustcInvocation is a typed view over one compiler command line. The
// argument vector is parsed once into semantic fields and value
// positions; rewrites go through methods that edit the vector in place,
// so untouched invocations re-serialize byte-identical.
type rustcInvocation struct {
	args []string

	crateName string
	target    string
	emit      string

	crateTypePos []argPos
	outDirPos    argPos
	sourceIdx    int

	hasTest  bool
	hasPrint bool
}

// argPos addresses one flag value inside the vector: the index it lives
// at and whether it is attached to the flag with '='.
type argPos struct {
	idx      int
	attached bool
	flag     string
}

var noPos = argPos{idx: -1}

// longValueFlags take their value as the following argument.
var longValueFlags = map[string]bool{
	"--crate-name":        true,
	"--crate-type":        true,
	"--edition":           true,
	"--emit":              true,
	"--out-dir":           true,
	"--target":            true,
	"--error-format":      true,
	"--json":              true,
	"--cfg":               true,
	"--check-cfg":         true,
	"--extern":            true,
	"--cap-lints":         true,
	"--diagnostic-width":  true,
	"--color":             true,
	"--sysroot":           true,
	"--print":             true,
	"--remap-path-prefix": true,
	"--allow":             true,
	"--warn":              true,
	"--deny":              true,
	"--forbid":            true,
	"--codegen":           true,
}

// shortValueFlags take their value either attached or as the next
// argument.
var shortValueFlags = map[string]bool{
	"-C": true,
	"-L": true,
	"-W": true,
	"-A": true,
	"-D": true,
	"-F": true,
	"-Z": true,
	"-l": true,
	"-o": true,
}

// parseRustcInvocation builds the typed model for an argument vector
// (compiler binary excluded).
func parseRustcInvocation(args []string) *rustcInvocation {
	inv := &rustcInvocation{
		args:      args,
		outDirPos: noPos,
		sourceIdx: -1,
	}

	record := func(flag, value string, pos argPos) {
		switch flag {
		case "--crate-name":
			inv.crateName = value
		case "--crate-type":
			inv.crateTypePos = append(inv.crateTypePos, pos)
		case "--out-dir":
			inv.outDirPos = pos
		case "--target":
			inv.target = value
		case "--emit":
			inv.emit = value
		case "--print":
			inv.hasPrint = true
		}
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--test":
			inv.hasTest = true
		case strings.HasPrefix(a, "--"):
			if eq := strings.IndexByte(a, '='); eq >= 0 {
				flag := a[:eq]
				record(flag, a[eq+1:], argPos{idx: i, attached: true, flag: flag})
			} else if longValueFlags[a] {
				if i+1 < len(args) {
					record(a, args[i+1], argPos{idx: i + 1, flag: a})
					i++
				}
			}
		case strings.HasPrefix(a, "-") && len(a) > 1:
			flag := a[:2]
			if shortValueFlags[flag] {
				if len(a) == 2 {
					i++ // value is the next argument
				}
				// attached short value, nothing to record
			}
		default:
			if inv.sourceIdx < 0 {
				inv.sourceIdx = i
			}
		}
	}
	return inv
}

// Args returns the current argument vector.
func (inv *rustcInvocation) Args() []string { return inv.args }

// CrateName returns the value of --crate-name, if any.
func (inv *rustcInvocation) CrateName() string { return inv.crateName }

// SourceArg returns the positional source argument, or "".
func (inv *rustcInvocation) SourceArg() string {
	if inv.sourceIdx < 0 {
		return ""
	}
	return inv.args[inv.sourceIdx]
}

// IsTestHarness reports whether the invocation builds a test harness.
func (inv *rustcInvocation) IsTestHarness() bool { return inv.hasTest }

// IsPrintQuery reports whether the invocation only queries the compiler.
func (inv *rustcInvocation) IsPrintQuery() bool { return inv.hasPrint }

// EmitsLink reports whether the invocation produces a linked artifact,
// which is what separates real builds from metadata-only check runs.
func (inv *rustcInvocation) EmitsLink() bool {
	if inv.emit == "" {
		return true
	}
	for _, e := range strings.Split(inv.emit, ",") {
		if e == "link" {
			return true
		}
	}
	return false
}

// HasCrateType reports whether any --crate-type value includes the type.
func (inv *rustcInvocation) HasCrateType(t string) bool {
	for _, pos := range inv.crateTypePos {
		for _, v := range strings.Split(inv.crateTypeValue(pos), ",") {
			if v == t {
				return true
			}
		}
	}
	return false
}

func (inv *rustcInvocation) crateTypeValue(pos argPos) string {
	v := inv.args[pos.idx]
	if pos.attached {
		return v[strings.IndexByte(v, '=')+1:]
	}
	return v
}

// ReplaceCrateType rewrites every occurrence of the `from` crate type.
func (inv *rustcInvocation) ReplaceCrateType(from, to string) bool {
	changed := false
	for _, pos := range inv.crateTypePos {
		parts := strings.Split(inv.crateTypeValue(pos), ",")
		for i, v := range parts {
			if v == from {
				parts[i] = to
				changed = true
			}
		}
		joined := strings.Join(parts, ",")
		if pos.attached {
			inv.args[pos.idx] = pos.flag + "=" + joined
		} else {
			inv.args[pos.idx] = joined
		}
	}
	return changed
}

// SetOutDir redirects the output directory flag.
func (inv *rustcInvocation) SetOutDir(dir string) bool {
	if inv.outDirPos.idx < 0 {
		return false
	}
	if inv.outDirPos.attached {
		inv.args[inv.outDirPos.idx] = inv.outDirPos.flag + "=" + dir
	} else {
		inv.args[inv.outDirPos.idx] = dir
	}
	return true
}

// ReplaceSourceByFilename swaps the argument whose file name matches for
// a path pointing at newName in the same directory, preserving whether
// the original argument was relative or absolute.
func (inv *rustcInvocation) ReplaceSourceByFilename(filename, newName, unitName string) error {
	for i, arg := range inv.args {
		if filepath.Base(arg) == filename {
			inv.args[i] = filepath.Join(filepath.Dir(arg), newName)
			return nil
		}
	}
	return fmt.Errorf("unable to replace source argument when building target '%s'", unitName)
}

// Append adds arguments to the end of the vector.
func (inv *rustcInvocation) Append(args ...string) {
	inv.args = append(inv.args, args...)
}

// LibSearchPaths extracts the native library search directories the
// compiler was given (-L values carrying a native= or dependency=
// prefix).
func (inv *rustcInvocation) LibSearchPaths() []string {
	var paths []string
	take := func(v string) {
		if strings.HasPrefix(v, "native=") || strings.HasPrefix(v, "dependency=") {
			paths = append(paths, v[strings.IndexByte(v, '=')+1:])
		}
	}
	for i := 0; i < len(inv.args); i++ {
		a := inv.args[i]
		if a == "-L" {
			if i+1 < len(inv.args) {
				take(inv.args[i+1])
				i++
			}
		} else if strings.HasPrefix(a, "-L") {
			take(a[2:])
		}
	}
	return paths
}
