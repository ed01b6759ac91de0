package quadapk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// hookStateEnv carries the path of the serialized hook state from the
// orchestrator into every wrapped compiler invocation.
const hookStateEnv = "CARGO_QUAD_APK_HOOK_STATE"

// hookUnit is the subset of a compilation unit the wrapper needs to
// recognize and rewrite its compile.
type hookUnit struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	SrcPath     string `json:"src_path"`
	PackageName string `json:"package_name"`
}

// hookState is written by the orchestrator before it spawns cargo and
// read back by every wrapped compiler invocation. One state file exists
// per architecture, so the wrapper never consults ambient environment
// beyond the state path itself.
type hookState struct {
	Release   bool             `json:"release"`
	NoStrip   bool             `json:"nostrip"`
	RecordDir string           `json:"record_dir"`
	GlueSrc   string           `json:"glue_src"`
	Units     []hookUnit       `json:"units"`
	Toolchain toolchainContext `json:"toolchain"`
}

func writeHookState(path string, state *hookState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MaybeRunHook turns the process into a compiler wrapper when the hook
// environment is present. cargo invokes the wrapper as
//
//	<wrapper> <rustc> <args...>
//
// so os.Args[1] is the real compiler. Never returns in wrapper mode.
func MaybeRunHook() {
	statePath := os.Getenv(hookStateEnv)
	if statePath == "" || len(os.Args) < 2 {
		return
	}
	os.Exit(runHook(statePath, os.Args[1], os.Args[2:]))
}

func runHook(statePath, rustc string, argv []string) int {
	data, err := os.ReadFile(statePath)
	if err != nil {
		return hookFatal(fmt.Errorf("failed to read hook state: %w", err))
	}
	state := &hookState{}
	if err := json.Unmarshal(data, state); err != nil {
		return hookFatal(fmt.Errorf("corrupt hook state %s: %w", statePath, err))
	}

	inv := parseRustcInvocation(argv)

	// Version and metadata probes must stay byte-identical; cargo
	// parses their output.
	if inv.IsPrintQuery() || inv.CrateName() == "" {
		return runStreaming(rustc, inv.Args())
	}

	if inv.IsTestHarness() {
		name := inv.CrateName()
		if unit := matchUnit(state.Units, inv); unit != nil {
			name = unit.Name
		}
		fmt.Fprintf(os.Stderr, "Ignoring test-mode compile for target: %s\n", name)
		return 0
	}

	// Metadata-only compiles (cargo check) pass through untouched.
	if !inv.EmitsLink() {
		return runStreaming(rustc, inv.Args())
	}

	unit := matchUnit(state.Units, inv)
	if unit != nil && inv.target == state.Toolchain.Target.RustTriple() {
		return compileUnit(state, unit, inv, rustc)
	}

	// Dependency compile. Downgrade shared-object output to rlib so the
	// graph never emits stray .so files; everything else is untouched.
	inv.ReplaceCrateType("cdylib", "rlib")
	return runStreaming(rustc, inv.Args())
}

// matchUnit finds the compilation unit an invocation belongs to, by
// crate name and source file name.
func matchUnit(units []hookUnit, inv *rustcInvocation) *hookUnit {
	src := inv.SourceArg()
	if src == "" {
		return nil
	}
	for i := range units {
		u := &units[i]
		if inv.CrateName() == strings.ReplaceAll(u.Name, "-", "_") &&
			filepath.Base(src) == filepath.Base(u.SrcPath) {
			return u
		}
	}
	return nil
}

// compileUnit performs the full rewrite for an application or example
// entry point: glue injection, cdylib output, Android linker setup, and
// the shared-library record for the packaging stage.
func compileUnit(state *hookState, unit *hookUnit, inv *rustcInvocation, rustc string) int {
	tc := &state.Toolchain

	tmpName, cleanup, err := stageGlueSource(unit, state.GlueSrc)
	if err != nil {
		return hookFatal(err)
	}
	defer cleanup()

	if err := inv.ReplaceSourceByFilename(filepath.Base(unit.SrcPath), tmpName, unit.Name); err != nil {
		return hookFatal(err)
	}

	inv.ReplaceCrateType("bin", "cdylib")

	buildOut := filepath.Join(tc.BuildDir, "build")
	if err := os.MkdirAll(buildOut, 0o755); err != nil {
		return hookFatal(fmt.Errorf("failed to create output directory: %w", err))
	}
	if !inv.SetOutDir(buildOut) {
		inv.Append("--out-dir", buildOut)
	}

	// NDK r23 dropped libgcc. A one-line archive script redirects the
	// legacy name to libunwind.
	libgccDir := filepath.Join(buildOut, "_libgcc_")
	if err := os.MkdirAll(libgccDir, 0o755); err != nil {
		return hookFatal(fmt.Errorf("failed to create %s: %w", libgccDir, err))
	}
	if err := os.WriteFile(filepath.Join(libgccDir, "libgcc.a"), []byte("INPUT(-lunwind)"), 0o644); err != nil {
		return hookFatal(fmt.Errorf("failed to write libgcc shim: %w", err))
	}

	inv.Append(
		"-Clinker="+tc.Linker,
		"-Clinker-flavor=ld",
		"-Clink-arg=--sysroot="+tc.Sysroot,
		"-Clink-arg=-L"+tc.PlatformLibDir,
		"-Clink-arg=-L"+tc.CommonLibDir,
		"-Clink-arg=-L"+libgccDir,
		"-Clink-arg=-L"+tc.LibUnwindDir,
	)
	if state.Release && !state.NoStrip {
		inv.Append("-Clink-arg=-strip-all")
	}
	inv.Append("-Crelocation-model=pic")

	if code := runStreaming(rustc, inv.Args()); code != 0 {
		return code
	}

	// Ask the compiler what it just produced rather than guessing the
	// artifact name.
	libName, err := queryFileName(rustc, inv.Args())
	if err != nil {
		return hookFatal(err)
	}
	primary := filepath.Join(buildOut, libName)

	abi := tc.Target.AndroidAbi()
	libs := []SharedLibrary{{
		Abi:      abi,
		Path:     primary,
		Filename: "lib" + unit.Name + ".so",
	}}

	searchPaths := inv.LibSearchPaths()
	searchPaths = append(searchPaths, tc.CommonLibDir, tc.DepsDir)
	searchPaths = append(searchPaths, dylibPathEnv()...)

	exe := NewExecutor(context.Background())
	found, missing, err := resolveDylibClosure(
		primary,
		searchPaths,
		listPlatformLibs(tc.PlatformLibDir),
		readelfNeeded(exe, tc.Readelf),
	)
	if err != nil {
		return hookFatal(err)
	}
	for _, name := range missing {
		fmt.Fprintf(os.Stderr, "Warning: Shared library %q not found.\n", name)
	}
	for _, path := range found {
		libs = append(libs, SharedLibrary{Abi: abi, Path: path, Filename: filepath.Base(path)})
	}

	err = writeUnitRecord(state.RecordDir, tc.Target.RustTriple(), parseTargetKind(unit.Kind), unit.Name, libs)
	if err != nil {
		return hookFatal(err)
	}
	return 0
}

// stageGlueSource writes the temporary source file holding the unit's
// code plus the platform glue module, and returns its file name along
// with a cleanup function that removes it again.
func stageGlueSource(unit *hookUnit, gluePath string) (string, func(), error) {
	original, err := os.ReadFile(unit.SrcPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read source of target '%s': %w", unit.Name, err)
	}
	glue, err := os.ReadFile(gluePath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read glue module: %w", err)
	}

	// JNI name mangling, per "Resolving Native Method Names" in the JNI
	// design document.
	mangled := strings.NewReplacer("_", "_1", "-", "_1", ".", "_").Replace(unit.PackageName)
	extra := strings.ReplaceAll(string(glue), "JAVA_CLASS_PATH", "Java_"+mangled)

	base := filepath.Base(unit.SrcPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	tmpName := fmt.Sprintf("__cargo_apk_%s.tmp", stem)
	tmpPath := filepath.Join(filepath.Dir(unit.SrcPath), tmpName)

	content := string(original) + "\nmod cargo_apk_glue_code { " + extra + " }\n"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return "", nil, &ScratchFileError{Path: tmpPath, Err: err}
	}

	cleanup := func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove %s: %v\n", tmpPath, err)
		}
	}
	return tmpName, cleanup, nil
}

// queryFileName re-runs the invocation with --print file-names to learn
// the artifact name the compiler chose.
func queryFileName(rustc string, args []string) (string, error) {
	query := append(append([]string{}, args...), "--print", "file-names")
	out, err := exec.Command(rustc, query...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("file-names query failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("file-names query failed: %w", err)
	}
	name, _, _ := strings.Cut(string(out), "\n")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("file-names query produced no output")
	}
	return name, nil
}

// runStreaming executes the compiler with inherited stdio and maps the
// outcome to a wrapper exit code. The wrapper stays in cargo's process
// group on purpose, so job control keeps working.
func runStreaming(bin string, args []string) int {
	cmd := exec.Command(bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if code := exitErr.ExitCode(); code > 0 {
				return code
			}
			return 1
		}
		fmt.Fprintf(os.Stderr, "error: failed to run %s: %v\n", bin, err)
		return 1
	}
	return 0
}

func hookFatal(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
