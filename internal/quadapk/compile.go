package quadapk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// BuildOptions is the resolved build request from the command line.
type BuildOptions struct {
	ManifestPath string
	Release      bool
	NoSign       bool
	NoStrip      bool

	Bins        []string
	Examples    []string
	AllExamples bool

	// Targets overrides the package's configured architectures.
	Targets []BuildTarget
}

func profileName(release bool) string {
	if release {
		return "release"
	}
	return "debug"
}

// firstBuildError picks the worker failure worth reporting. Workers
// torn down by a sibling's failure report a context error; the
// originating failure is the interesting one.
func firstBuildError(errs []error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}

// Build compiles every selected unit for every requested architecture
// and packages one APK per unit.
func Build(ctx context.Context, cfg *Config, opts *BuildOptions) (*BuildResult, error) {
	exe := NewExecutor(ctx)

	meta, err := loadCargoMetadata(exe, opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	root, err := meta.rootPackage()
	if err != nil {
		return nil, err
	}

	all, err := meta.crateTargets()
	if err != nil {
		return nil, err
	}
	units, err := selectUnits(all, opts)
	if err != nil {
		return nil, err
	}

	settings := make(map[UnitRef]*TargetConfig, len(units))
	for _, unit := range units {
		tc, err := resolveTargetConfig(root, unit)
		if err != nil {
			return nil, err
		}
		settings[UnitRef{Kind: unit.Kind, Name: unit.Name}] = tc
	}
	first := settings[UnitRef{Kind: units[0].Kind, Name: units[0].Name}]

	archTargets := first.BuildTargets
	if len(opts.Targets) > 0 {
		archTargets = opts.Targets
	}

	// Everything is compiled against the miniquad runtime; its android
	// glue and java templates come from the resolved dependency itself.
	mq := meta.findPackage("miniquad")
	if mq == nil {
		return nil, fmt.Errorf("only miniquad applications can be packaged, but miniquad is not in the dependency tree")
	}
	mqDir := mq.manifestDir()
	glueSrc := filepath.Join(mqDir, "src", "native", "android", "mod_inject.rs")
	mainActivitySrc := filepath.Join(mqDir, "java", "MainActivity.java")
	quadNativeSrc := filepath.Join(mqDir, "java", "QuadNative.java")

	aux, err := discoverAuxPackages(meta)
	if err != nil {
		return nil, err
	}
	var fragments []string
	for _, ap := range aux {
		if ap.MainActivityInject != "" {
			fragments = append(fragments, ap.MainActivityInject)
		}
	}
	inject, err := loadInjectFragments(fragments)
	if err != nil {
		return nil, err
	}

	artifactsDir := filepath.Join(meta.TargetDirectory, "android-artifacts", profileName(opts.Release))
	recordDir := filepath.Join(artifactsDir, "records")
	if err := os.MkdirAll(recordDir, 0o755); err != nil {
		return nil, err
	}
	checkDiskSpace(meta.TargetDirectory)

	wrapper, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot determine own executable path: %w", err)
	}
	cargo, err := exec.LookPath("cargo")
	if err != nil {
		return nil, toolNotFound("cargo", "PATH")
	}

	hookUnits := make([]hookUnit, 0, len(units))
	for _, unit := range units {
		ref := UnitRef{Kind: unit.Kind, Name: unit.Name}
		hookUnits = append(hookUnits, hookUnit{
			Kind:        unit.Kind.String(),
			Name:        unit.Name,
			SrcPath:     unit.SrcPath,
			PackageName: settings[ref].PackageName,
		})
	}

	// One worker per architecture. Workers share nothing mutable; each
	// builds with its own toolchain context and state file, and results
	// land in per-unit record files merged after the join. The first
	// failure cancels the siblings.
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	errs := make([]error, len(archTargets))
	for i, target := range archTargets {
		wg.Add(1)
		go func(i int, target BuildTarget) {
			defer wg.Done()
			errs[i] = buildArch(workCtx, cfg, opts, archParams{
				target:         target,
				minSdk:         first.MinSdkVersion,
				artifactsDir:   artifactsDir,
				cargoTargetDir: meta.TargetDirectory,
				recordDir:      recordDir,
				glueSrc:        glueSrc,
				wrapper:        wrapper,
				cargo:          cargo,
				units:          hookUnits,
			})
			if errs[i] != nil {
				cancel()
			}
		}(i, target)
	}
	wg.Wait()
	if err := firstBuildError(errs); err != nil {
		return nil, err
	}

	libMap := NewLibraryMap()
	if err := mergeUnitRecords(recordDir, libMap); err != nil {
		return nil, err
	}

	tools, err := locateApkTools(cfg, first.TargetSdkVersion)
	if err != nil {
		return nil, err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	asm := &assembler{
		exe:             exe,
		tools:           tools,
		artifactsDir:    artifactsDir,
		homeDir:         home,
		mainActivitySrc: mainActivitySrc,
		quadNativeSrc:   quadNativeSrc,
		inject:          inject,
		aux:             aux,
		sign:            !opts.NoSign,
	}

	result := &BuildResult{
		Apks:     make(map[UnitRef]string, len(units)),
		Packages: make(map[UnitRef]string, len(units)),
	}
	for i, unit := range units {
		ref := UnitRef{Kind: unit.Kind, Name: unit.Name}
		libs := libMap.Libs(unit.Kind, unit.Name)
		if len(libs) == 0 {
			return nil, fmt.Errorf("no shared libraries were produced for %s %q", unit.Kind, unit.Name)
		}
		colNote.Printf(" %s (%d/%d)\n", unit.Name, i+1, len(units))
		apk, err := asm.assemble(unit, settings[ref], libs)
		if err != nil {
			return nil, fmt.Errorf("packaging %s %q: %w", unit.Kind, unit.Name, err)
		}
		result.Apks[ref] = apk
		result.Packages[ref] = settings[ref].PackageName
		stepf("Packaged %s\n", apk)
	}
	return result, nil
}

// archParams bundles the per-architecture worker inputs.
type archParams struct {
	target         BuildTarget
	minSdk         int
	artifactsDir   string
	cargoTargetDir string
	recordDir      string
	glueSrc        string
	wrapper        string
	cargo          string
	units          []hookUnit
}

// buildArch runs one architecture's cargo build with the wrapper hook
// installed. All toolchain selection travels in the child environment
// and the state file; nothing leaks into this process.
func buildArch(ctx context.Context, cfg *Config, opts *BuildOptions, p archParams) error {
	archDir := filepath.Join(p.artifactsDir, p.target.RustTriple())
	tc, err := newToolchainContext(cfg, p.target, p.minSdk, archDir, p.cargoTargetDir, opts.Release)
	if err != nil {
		return err
	}

	statePath := filepath.Join(archDir, "hook-state.json")
	state := &hookState{
		Release:   opts.Release,
		NoStrip:   opts.NoStrip,
		RecordDir: p.recordDir,
		GlueSrc:   p.glueSrc,
		Units:     p.units,
		Toolchain: *tc,
	}
	if err := writeHookState(statePath, state); err != nil {
		return fmt.Errorf("failed to write hook state: %w", err)
	}

	args := []string{"build", "--target", p.target.RustTriple()}
	if opts.Release {
		args = append(args, "--release")
	}
	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}
	for _, u := range p.units {
		switch parseTargetKind(u.Kind) {
		case TargetKindBin:
			args = append(args, "--bin", u.Name)
		case TargetKindExampleBin:
			args = append(args, "--example", u.Name)
		}
	}

	stepf("Compiling %s\n", p.target.RustTriple())

	cmd := exec.Command(p.cargo, args...)
	cmd.Env = append(os.Environ(),
		"RUSTC_WRAPPER="+p.wrapper,
		hookStateEnv+"="+statePath,
		"CC="+tc.Clang,
		"CXX="+tc.ClangPP,
		"AR="+tc.Ar,
		"CXXSTDLIB=c++",
		"CMAKE_TOOLCHAIN_FILE="+tc.CmakeToolchainFile,
		"CMAKE_GENERATOR=Unix Makefiles",
		"CMAKE_MAKE_PROGRAM="+tc.MakeProgram,
	)

	exe := NewExecutor(ctx)
	if err := exe.Run(cmd); err != nil {
		return fmt.Errorf("cargo build for %s failed: %w", p.target.RustTriple(), err)
	}
	return nil
}

// selectUnits maps the command-line selection onto the package's
// targets. With no selection every binary target is built.
func selectUnits(all []CrateTarget, opts *BuildOptions) ([]CrateTarget, error) {
	find := func(kind TargetKind, name string) (CrateTarget, bool) {
		for _, t := range all {
			if t.Kind == kind && t.Name == name {
				return t, true
			}
		}
		return CrateTarget{}, false
	}

	if len(opts.Bins) == 0 && len(opts.Examples) == 0 && !opts.AllExamples {
		var units []CrateTarget
		for _, t := range all {
			if t.Kind == TargetKindBin {
				units = append(units, t)
			}
		}
		if len(units) == 0 {
			return nil, fmt.Errorf("package has no binary targets")
		}
		return units, nil
	}

	var units []CrateTarget
	seen := make(map[UnitRef]bool)
	add := func(t CrateTarget) {
		ref := UnitRef{Kind: t.Kind, Name: t.Name}
		if !seen[ref] {
			seen[ref] = true
			units = append(units, t)
		}
	}

	for _, name := range opts.Bins {
		t, ok := find(TargetKindBin, name)
		if !ok {
			return nil, fmt.Errorf("no bin target named %q", name)
		}
		add(t)
	}
	for _, name := range opts.Examples {
		t, ok := find(TargetKindExampleBin, name)
		if !ok {
			return nil, fmt.Errorf("no example target named %q", name)
		}
		add(t)
	}
	if opts.AllExamples {
		for _, t := range all {
			if t.Kind == TargetKindExampleBin {
				add(t)
			}
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("selection matched no targets")
	}
	return units, nil
}
