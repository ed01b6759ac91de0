package quadapk

import "fmt"

// BuildTarget identifies one Android ABI the project is cross-compiled
// for. The set is fixed; configuration only selects among them.
type BuildTarget int

const (
	TargetArmV7 BuildTarget = iota
	TargetArm64
	TargetX86
	TargetX86_64
)

// AllBuildTargets lists every supported ABI in a stable order.
var AllBuildTargets = []BuildTarget{TargetArmV7, TargetArm64, TargetX86, TargetX86_64}

// DefaultBuildTargets is used when the project metadata selects nothing.
var DefaultBuildTargets = []BuildTarget{TargetArmV7, TargetArm64}

// RustTriple returns the rustc target triple.
func (t BuildTarget) RustTriple() string {
	switch t {
	case TargetArmV7:
		return "armv7-linux-androideabi"
	case TargetArm64:
		return "aarch64-linux-android"
	case TargetX86:
		return "i686-linux-android"
	case TargetX86_64:
		return "x86_64-linux-android"
	}
	return "unknown"
}

// AndroidAbi returns the ABI directory name used inside the package
// container (lib/<abi>/...).
func (t BuildTarget) AndroidAbi() string {
	switch t {
	case TargetArmV7:
		return "armeabi-v7a"
	case TargetArm64:
		return "arm64-v8a"
	case TargetX86:
		return "x86"
	case TargetX86_64:
		return "x86_64"
	}
	return "unknown"
}

// ClangTriple returns the prefix of the NDK clang wrapper binary. It
// matches the rust triple for every ABI except 32-bit ARM.
func (t BuildTarget) ClangTriple() string {
	if t == TargetArmV7 {
		return "armv7a-linux-androideabi"
	}
	return t.RustTriple()
}

// SysrootTriple returns the sysroot library subdirectory name.
func (t BuildTarget) SysrootTriple() string {
	if t == TargetArmV7 {
		return "arm-linux-androideabi"
	}
	return t.RustTriple()
}

// UnwindArch returns the clang runtime directory name holding libunwind.
func (t BuildTarget) UnwindArch() string {
	switch t {
	case TargetArmV7:
		return "arm"
	case TargetArm64:
		return "aarch64"
	case TargetX86:
		return "i386"
	case TargetX86_64:
		return "x86_64"
	}
	return "unknown"
}

func (t BuildTarget) String() string { return t.RustTriple() }

// ParseRustTriple maps a rustc triple back to a BuildTarget.
func ParseRustTriple(s string) (BuildTarget, error) {
	for _, t := range AllBuildTargets {
		if t.RustTriple() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unsupported build target %q", s)
}
