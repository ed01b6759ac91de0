package quadapk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildResult maps each packaged unit to the path of its final APK,
// along with the package identifier the APK installs under.
type BuildResult struct {
	Apks     map[UnitRef]string
	Packages map[UnitRef]string
}

// assembler turns the shared libraries collected for each unit into an
// aligned, signed APK. All tool paths are resolved up front; everything
// here is plain sequential process orchestration.
type assembler struct {
	exe   *Executor
	tools *apkTools

	artifactsDir string
	homeDir      string

	mainActivitySrc string
	quadNativeSrc   string
	inject          InjectSections
	aux             []AuxPackage

	sign bool
}

func kindDir(kind TargetKind) string {
	if kind == TargetKindExampleBin {
		return "examples"
	}
	return "bin"
}

// assemble packages one unit and returns the final APK path.
func (a *assembler) assemble(unit CrateTarget, cfg *TargetConfig, libs []SharedLibrary) (string, error) {
	unitDir := filepath.Join(a.artifactsDir, kindDir(unit.Kind), unit.Name)
	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return "", err
	}

	packageName := strings.ReplaceAll(cfg.PackageName, "-", "_")
	libraryName := cfg.LibraryName()

	var services []string
	for _, ap := range a.aux {
		services = append(services, ap.JavaServices...)
	}

	stepf("Generating manifest for %s\n", unit.Name)
	manifest := renderManifest(cfg, unit.Name, services)
	if err := os.WriteFile(filepath.Join(unitDir, "AndroidManifest.xml"), []byte(manifest), 0o644); err != nil {
		return "", err
	}

	for _, dir := range []string{
		filepath.Join(unitDir, "build", "obj"),
		filepath.Join(unitDir, "build", "gen"),
		filepath.Join(unitDir, "res", "layout"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(filepath.Join(unitDir, "res", "layout", "main.xml"), []byte(defaultLayoutXML), 0o644); err != nil {
		return "", err
	}

	unalignedName := unit.Name + "_unaligned.apk"
	unalignedPath := filepath.Join(unitDir, unalignedName)
	if err := os.Remove(unalignedPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("unable to delete stale APK: %w", err)
	}

	javaArgs, err := a.stageJavaSources(unitDir, packageName, libraryName)
	if err != nil {
		return "", err
	}

	stepf("Compiling resources for %s\n", unit.Name)
	if err := a.runAapt(unitDir, cfg, unalignedName); err != nil {
		return "", err
	}

	stepf("Compiling java sources for %s\n", unit.Name)
	if err := a.runJavac(unitDir, packageName, javaArgs); err != nil {
		return "", err
	}

	stepf("Merging bytecode for %s\n", unit.Name)
	if err := a.runD8(unitDir); err != nil {
		return "", err
	}

	cmd := scriptCommand(a.tools.Aapt, "add", unalignedName, "classes.dex")
	cmd.Dir = unitDir
	if err := a.exe.RunTool(cmd); err != nil {
		return "", fmt.Errorf("aapt add classes.dex failed: %w", err)
	}

	stepf("Packing %d shared libraries into %s\n", len(libs), unalignedName)
	if err := a.addLibraries(unitDir, unalignedName, libs); err != nil {
		return "", err
	}

	apkDir := filepath.Join(a.artifactsDir, "apk")
	if unit.Kind == TargetKindExampleBin {
		apkDir = filepath.Join(apkDir, "examples")
	}
	if err := os.MkdirAll(apkDir, 0o755); err != nil {
		return "", err
	}
	finalPath := filepath.Join(apkDir, unit.Name+".apk")

	stepf("Aligning %s\n", finalPath)
	cmd = scriptCommand(a.tools.Zipalign, "-f", "-v", "4", unalignedName, finalPath)
	cmd.Dir = unitDir
	if err := a.exe.RunTool(cmd); err != nil {
		return "", fmt.Errorf("zipalign failed: %w", err)
	}

	if a.sign {
		keystore, err := ensureDebugKeystore(a.exe, a.tools.Keytool, a.homeDir)
		if err != nil {
			return "", err
		}
		stepf("Signing %s\n", finalPath)
		cmd = scriptCommand(a.tools.Apksigner, "sign", "--ks", keystore, "--ks-pass", "pass:"+debugStorePass, finalPath)
		cmd.Dir = unitDir
		if err := a.exe.RunTool(cmd); err != nil {
			return "", fmt.Errorf("apksigner failed: %w", err)
		}
	}

	if _, err := writeChecksumSidecar(finalPath); err != nil {
		warnf("Failed to write checksum for %s: %v\n", finalPath, err)
	}
	return finalPath, nil
}

// stageJavaSources writes the templated MainActivity, the native bridge
// and every auxiliary java file into the unit work dir. It returns the
// javac arguments for the auxiliary sources, relative to the work dir.
func (a *assembler) stageJavaSources(unitDir, packageName, libraryName string) ([]string, error) {
	javaDir := unitDir
	for _, part := range strings.Split(packageName, ".") {
		javaDir = filepath.Join(javaDir, part)
	}
	if err := os.MkdirAll(javaDir, 0o755); err != nil {
		return nil, err
	}

	src, err := os.ReadFile(a.mainActivitySrc)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity template: %w", err)
	}
	rendered := renderMainActivity(string(src), packageName, libraryName, a.inject)
	if err := os.WriteFile(filepath.Join(javaDir, "MainActivity.java"), []byte(rendered), 0o644); err != nil {
		return nil, err
	}

	if err := copyFile(a.quadNativeSrc, filepath.Join(unitDir, "quad_native", "QuadNative.java")); err != nil {
		return nil, fmt.Errorf("failed to stage native bridge source: %w", err)
	}

	var args []string
	for _, ap := range a.aux {
		for _, rel := range ap.JavaFiles {
			local := strings.TrimPrefix(rel, "java/")
			if local == rel {
				return nil, &ConfigError{
					File: filepath.Join(ap.Dir, "quad.toml"),
					Err:  fmt.Errorf("java file %q must live under java/", rel),
				}
			}

			data, err := os.ReadFile(ap.absPath(rel))
			if err != nil {
				return nil, fmt.Errorf("failed to read java file of %s: %w", ap.PackageName, err)
			}
			text := strings.ReplaceAll(string(data), "TARGET_PACKAGE_NAME", packageName)
			text = strings.ReplaceAll(text, "LIBRARY_NAME", libraryName)

			dest := filepath.Join(unitDir, filepath.FromSlash(local))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(dest, []byte(text), 0o644); err != nil {
				return nil, err
			}
			args = append(args, filepath.FromSlash(local))
		}
	}
	return args, nil
}

// runAapt compiles resources and the manifest into the unaligned APK.
func (a *assembler) runAapt(unitDir string, cfg *TargetConfig, unalignedName string) error {
	args := []string{
		"package",
		"-F", unalignedName,
		"-m",
		"-J", filepath.Join("build", "gen"),
		"-M", "AndroidManifest.xml",
		"-S", "res",
		"-I", a.tools.AndroidJar,
	}
	if cfg.ResPath != "" {
		args = append(args, "-S", cfg.ResPath)
	}
	if cfg.AssetsPath != "" {
		args = append(args, "-A", cfg.AssetsPath)
	}

	cmd := scriptCommand(a.tools.Aapt, args...)
	cmd.Dir = unitDir
	if err := a.exe.RunTool(cmd); err != nil {
		return fmt.Errorf("aapt package failed: %w", err)
	}
	return nil
}

// runJavac compiles the staged sources against the platform jar plus
// any compile-time jars the auxiliary packages contribute.
func (a *assembler) runJavac(unitDir, packageName string, auxSources []string) error {
	classpath := a.tools.AndroidJar
	for _, ap := range a.aux {
		for _, jar := range ap.ComptimeJars {
			classpath += classpathSeparator() + ap.absPath(jar)
		}
	}

	rJava := filepath.Join(unitDir, "build", "gen")
	for _, part := range strings.Split(packageName, ".") {
		rJava = filepath.Join(rJava, part)
	}
	rJava = filepath.Join(rJava, "R.java")

	activity := unitDir
	for _, part := range strings.Split(packageName, ".") {
		activity = filepath.Join(activity, part)
	}
	activity = filepath.Join(activity, "MainActivity.java")

	args := []string{
		"-source", "1.7",
		"-target", "1.7",
		"-Xlint:deprecation",
		"-classpath", classpath,
		"-d", filepath.Join("build", "obj"),
		filepath.Join("quad_native", "QuadNative.java"),
	}
	args = append(args, auxSources...)
	args = append(args, rJava, activity)

	cmd := scriptCommand(a.tools.Javac, args...)
	cmd.Dir = unitDir
	if err := a.exe.RunTool(cmd); err != nil {
		return fmt.Errorf("javac failed: %w", err)
	}
	return nil
}

// runD8 merges every compiled class plus runtime jars into classes.dex.
func (a *assembler) runD8(unitDir string) error {
	classFiles, err := collectFiles(unitDir, ".class")
	if err != nil {
		return err
	}
	if len(classFiles) == 0 {
		return fmt.Errorf("no class files produced under %s", unitDir)
	}

	args := append([]string{}, classFiles...)
	for _, ap := range a.aux {
		for _, jar := range ap.RuntimeJars {
			args = append(args, ap.absPath(jar))
		}
	}
	// Desugaring needs a full classpath and is pointless here; without
	// this flag d8 fails with "Type `java.lang.System` was not found".
	args = append(args, "--no-desugaring", "--min-api", "26")

	cmd := scriptCommand(a.tools.D8, args...)
	cmd.Dir = unitDir
	if err := a.exe.RunTool(cmd); err != nil {
		return fmt.Errorf("d8 failed: %w", err)
	}
	return nil
}

// addLibraries copies each shared library under lib/<abi>/ and appends
// it to the archive. The archive-internal path always uses forward
// slashes; aapt rejects backslashed entries.
func (a *assembler) addLibraries(unitDir, unalignedName string, libs []SharedLibrary) error {
	bar := newStepBar(len(libs), "packing libraries")
	defer barFinish(bar)

	for _, lib := range libs {
		soPath := "lib/" + lib.Abi + "/" + lib.Filename

		dest := filepath.Join(unitDir, filepath.FromSlash(soPath))
		if err := copyFile(lib.Path, dest); err != nil {
			return fmt.Errorf("failed to stage %s: %w", lib.Filename, err)
		}

		cmd := scriptCommand(a.tools.Aapt, "add", unalignedName, soPath)
		cmd.Dir = unitDir
		if err := a.exe.RunTool(cmd); err != nil {
			return fmt.Errorf("aapt add %s failed: %w", soPath, err)
		}
		barAdd(bar, 1)
	}
	return nil
}
