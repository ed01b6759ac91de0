package quadapk

import (
	"os"
	"path/filepath"
)

// apkTools carries the resolved paths of every SDK and JDK executable the
// assembler invokes, so the whole set is located once and failures
// surface before any packaging work starts.
type apkTools struct {
	Aapt      string
	D8        string
	Zipalign  string
	Apksigner string
	Javac     string
	Keytool   string

	AndroidJar string
}

// locateApkTools resolves the SDK build-tools and JDK executables.
func locateApkTools(cfg *Config, targetSdk int) (*apkTools, error) {
	buildTools, err := cfg.BuildToolsDir()
	if err != nil {
		return nil, err
	}

	t := &apkTools{}
	if t.Aapt, err = findBuildTool(buildTools, "aapt", exeSuffix()); err != nil {
		return nil, err
	}
	// d8 and apksigner ship as script wrappers, not native executables.
	if t.D8, err = findBuildTool(buildTools, "d8", batSuffix()); err != nil {
		return nil, err
	}
	if t.Zipalign, err = findBuildTool(buildTools, "zipalign", exeSuffix()); err != nil {
		return nil, err
	}
	if t.Apksigner, err = findBuildTool(buildTools, "apksigner", batSuffix()); err != nil {
		return nil, err
	}

	if t.Javac, err = findJavaExecutable("javac" + exeSuffix()); err != nil {
		return nil, err
	}
	if t.Keytool, err = findJavaExecutable("keytool" + exeSuffix()); err != nil {
		return nil, err
	}

	if t.AndroidJar, err = cfg.AndroidJar(targetSdk); err != nil {
		return nil, err
	}
	return t, nil
}

// findBuildTool locates one executable inside the SDK build-tools dir.
func findBuildTool(buildToolsDir, name, suffix string) (string, error) {
	p := filepath.Join(buildToolsDir, name+suffix)
	if !fileExists(p) {
		return "", toolNotFound(name, p)
	}
	return p, nil
}

// findJavaExecutable locates a JDK tool on PATH, then under JAVA_HOME.
func findJavaExecutable(name string) (string, error) {
	var searched []string
	if paths := os.Getenv("PATH"); paths != "" {
		for _, dir := range filepath.SplitList(paths) {
			if dir == "" {
				continue
			}
			p := filepath.Join(dir, name)
			if fileExists(p) {
				return p, nil
			}
		}
		searched = append(searched, "PATH")
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "bin", name)
		searched = append(searched, p)
		if fileExists(p) {
			return p, nil
		}
	} else {
		searched = append(searched, "JAVA_HOME (unset)")
	}
	return "", toolNotFound(name, searched...)
}

// findAdb locates the device bridge on PATH, then under the SDK's
// platform-tools.
func findAdb(cfg *Config) (string, error) {
	name := "adb" + exeSuffix()
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p, nil
		}
	}
	searched := []string{"PATH"}
	if root, err := cfg.SdkRoot(); err == nil {
		p := filepath.Join(root, "platform-tools", name)
		searched = append(searched, p)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", toolNotFound("adb", searched...)
}
