package quadapk

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// toolchainContext bundles every NDK path one architecture's build needs.
// It is immutable once built and threaded explicitly through the
// compilation driver; nothing here is ever written into the parent
// process environment.
type toolchainContext struct {
	Target BuildTarget `json:"target"`
	MinSdk int         `json:"min_sdk"`

	NdkRoot  string `json:"ndk_root"`
	LlvmRoot string `json:"llvm_root"`

	Clang   string `json:"clang"`
	ClangPP string `json:"clang_pp"`
	Ar      string `json:"ar"`
	Readelf string `json:"readelf"`
	Linker  string `json:"linker"`

	Sysroot        string `json:"sysroot"`
	PlatformLibDir string `json:"platform_lib_dir"` // version-specific system libraries
	CommonLibDir   string `json:"common_lib_dir"`   // version-independent system libraries
	LibUnwindDir   string `json:"libunwind_dir"`

	CmakeToolchainFile string `json:"cmake_toolchain_file"`
	MakeProgram        string `json:"make_program"`

	BuildDir string `json:"build_dir"` // per-arch artifact dir
	DepsDir  string `json:"deps_dir"`  // cargo's per-triple deps dir
}

// llvmToolchainRoot returns the NDK's prebuilt LLVM toolchain for the
// running host.
func llvmToolchainRoot(ndkRoot string) string {
	return filepath.Join(ndkRoot, "toolchains", "llvm", "prebuilt", hostTag())
}

// findVersionedPath probes candidate paths the way the NDK build system
// resolves platform versions: the requested version, then each lower one,
// then each higher one up to the NDK ceiling. Returns the first path that
// exists.
func findVersionedPath(platform int, build func(int) string) (string, bool) {
	for v := platform; v > 1; v-- {
		if p := build(v); pathExists(p) {
			return p, true
		}
	}
	for v := platform; v < 100; v++ {
		if p := build(v); pathExists(p) {
			return p, true
		}
	}
	return "", false
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// cmdSuffix is the suffix of the NDK clang wrapper scripts.
func cmdSuffix() string {
	if runtime.GOOS == "windows" {
		return ".cmd"
	}
	return ""
}

func findClang(llvmRoot string, target BuildTarget, minSdk int) (string, error) {
	bin := filepath.Join(llvmRoot, "bin")
	p, ok := findVersionedPath(minSdk, func(v int) string {
		return filepath.Join(bin, fmt.Sprintf("%s%d-clang%s", target.ClangTriple(), v, cmdSuffix()))
	})
	if !ok {
		return "", toolNotFound("clang", filepath.Join(bin, target.ClangTriple()+"<platform>-clang"+cmdSuffix()))
	}
	return p, nil
}

func findClangPP(llvmRoot string, target BuildTarget, minSdk int) (string, error) {
	bin := filepath.Join(llvmRoot, "bin")
	p, ok := findVersionedPath(minSdk, func(v int) string {
		return filepath.Join(bin, fmt.Sprintf("%s%d-clang++%s", target.ClangTriple(), v, cmdSuffix()))
	})
	if !ok {
		return "", toolNotFound("clang++", filepath.Join(bin, target.ClangTriple()+"<platform>-clang++"+cmdSuffix()))
	}
	return p, nil
}

// findLlvmTool locates one of the renamed llvm-* binutils. NDK r23 dropped
// the per-triple prefixed names.
func findLlvmTool(llvmRoot, name string) (string, error) {
	p := filepath.Join(llvmRoot, "bin", "llvm-"+name+exeSuffix())
	if !fileExists(p) {
		return "", toolNotFound("llvm-"+name, p)
	}
	return p, nil
}

// findLibUnwindDir locates the clang runtime directory that carries
// libunwind.a for the target architecture.
func findLibUnwindDir(llvmRoot string, target BuildTarget) (string, error) {
	clangLib := filepath.Join(llvmRoot, "lib", "clang")
	entries, err := os.ReadDir(clangLib)
	if err != nil || len(entries) == 0 {
		return "", toolNotFound("libunwind.a", filepath.Join(clangLib, "<version>", "lib", "linux", target.UnwindArch()))
	}
	dir := filepath.Join(clangLib, entries[0].Name(), "lib", "linux", target.UnwindArch())
	if !fileExists(filepath.Join(dir, "libunwind.a")) {
		return "", toolNotFound("libunwind.a", dir)
	}
	return dir, nil
}

// newToolchainContext resolves every toolchain path for one architecture
// and writes the per-arch cmake toolchain file.
func newToolchainContext(cfg *Config, target BuildTarget, minSdk int, buildDir, cargoTargetDir string, release bool) (*toolchainContext, error) {
	ndkRoot, err := cfg.NdkRoot()
	if err != nil {
		return nil, err
	}
	llvmRoot := llvmToolchainRoot(ndkRoot)

	tc := &toolchainContext{
		Target:   target,
		MinSdk:   minSdk,
		NdkRoot:  ndkRoot,
		LlvmRoot: llvmRoot,
		BuildDir: buildDir,
		Sysroot:  filepath.Join(llvmRoot, "sysroot"),
		Linker:   filepath.Join(llvmRoot, "bin", "ld"+exeSuffix()),
	}

	if tc.Clang, err = findClang(llvmRoot, target, minSdk); err != nil {
		return nil, err
	}
	if tc.ClangPP, err = findClangPP(llvmRoot, target, minSdk); err != nil {
		return nil, err
	}
	if tc.Ar, err = findLlvmTool(llvmRoot, "ar"); err != nil {
		return nil, err
	}
	if tc.Readelf, err = findLlvmTool(llvmRoot, "readelf"); err != nil {
		return nil, err
	}

	tc.CommonLibDir = filepath.Join(tc.Sysroot, "usr", "lib", target.SysrootTriple())
	platformDir, ok := findVersionedPath(minSdk, func(v int) string {
		return filepath.Join(tc.CommonLibDir, strconv.Itoa(v))
	})
	if !ok {
		return nil, toolNotFound("platform libraries", filepath.Join(tc.CommonLibDir, "<platform>"))
	}
	tc.PlatformLibDir = platformDir

	if tc.LibUnwindDir, err = findLibUnwindDir(llvmRoot, target); err != nil {
		return nil, err
	}

	tc.MakeProgram = filepath.Join(ndkRoot, "prebuilt", hostTag(), "bin", "make"+exeSuffix())

	profile := "debug"
	if release {
		profile = "release"
	}
	tc.DepsDir = filepath.Join(cargoTargetDir, target.RustTriple(), profile, "deps")

	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return nil, err
	}
	if tc.CmakeToolchainFile, err = writeCmakeToolchain(tc, buildDir); err != nil {
		return nil, err
	}

	return tc, nil
}

// writeCmakeToolchain generates a toolchain file that strips the rustc
// target flag before deferring to the NDK's own cmake toolchain, so that
// crates building C dependencies through cmake pick the right compilers.
func writeCmakeToolchain(tc *toolchainContext, buildDir string) (string, error) {
	path := filepath.Join(buildDir, "cargo-apk.toolchain.cmake")

	// Forward slashes even on windows to avoid path escaping issues.
	ndkPath := strings.ReplaceAll(tc.NdkRoot, "\\", "/")

	content := fmt.Sprintf(`set(ANDROID_PLATFORM android-%d)
set(ANDROID_ABI %s)
string(REPLACE "--target=%s" "" CMAKE_C_FLAGS "${CMAKE_C_FLAGS}")
string(REPLACE "--target=%s" "" CMAKE_CXX_FLAGS "${CMAKE_CXX_FLAGS}")
unset(CMAKE_C_COMPILER CACHE)
unset(CMAKE_CXX_COMPILER CACHE)
include("%s/build/cmake/android.toolchain.cmake")
`, tc.MinSdk, tc.Target.AndroidAbi(), tc.Target.RustTriple(), tc.Target.RustTriple(), ndkPath)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write cmake toolchain file: %w", err)
	}
	return path, nil
}
