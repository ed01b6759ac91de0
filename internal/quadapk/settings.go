package quadapk

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Permission is one manifest permission request.
type Permission struct {
	Name          string `json:"name"`
	MaxSdkVersion *int   `json:"max_sdk_version"`
}

// Feature is one manifest feature requirement.
type Feature struct {
	Name     string  `json:"name"`
	Version  *string `json:"version"`
	Required *bool   `json:"required"`
}

// TargetConfig is the resolved per-unit packaging configuration, sourced
// from the crate manifest's android metadata table with defaults filled
// in. One instance per unit; resolved once before anything is compiled.
type TargetConfig struct {
	PackageName string
	Label       string
	Icon        string
	Fullscreen  bool

	ResPath    string
	AssetsPath string

	OpenGLESMajor int
	OpenGLESMinor int

	VersionCode int
	VersionName string

	MinSdkVersion    int
	TargetSdkVersion int

	BuildTargets []BuildTarget

	ApplicationAttributes map[string]string
	ActivityAttributes    map[string]string

	Permissions []Permission
	Features    []Feature
}

// LibraryName returns the short library identifier derived from the
// package name (its last dot-separated component).
func (c *TargetConfig) LibraryName() string {
	parts := strings.Split(c.PackageName, ".")
	return parts[len(parts)-1]
}

// androidMetadata mirrors [package.metadata.android] as cargo renders it
// into the metadata JSON. Pointers distinguish absent from zero.
type androidMetadata struct {
	PackageName           *string           `json:"package_name"`
	Label                 *string           `json:"label"`
	Icon                  *string           `json:"icon"`
	Fullscreen            *bool             `json:"fullscreen"`
	Res                   *string           `json:"res"`
	Assets                *string           `json:"assets"`
	OpenGLESMajor         *int              `json:"opengles_version_major"`
	OpenGLESMinor         *int              `json:"opengles_version_minor"`
	VersionCode           *int              `json:"version_code"`
	VersionName           *string           `json:"version_name"`
	MinSdkVersion         *int              `json:"min_sdk_version"`
	TargetSdkVersion      *int              `json:"target_sdk_version"`
	BuildTargets          []string          `json:"build_targets"`
	ApplicationAttributes map[string]string `json:"application_attributes"`
	ActivityAttributes    map[string]string `json:"activity_attributes"`
	Permissions           []Permission      `json:"permission"`
	Features              []Feature         `json:"feature"`
}

type packageMetadata struct {
	Android *androidMetadata `json:"android"`
}

// resolveTargetConfig merges the package's android metadata over the
// documented defaults for one unit.
func resolveTargetConfig(pkg *cargoPackage, unit CrateTarget) (*TargetConfig, error) {
	cfg := &TargetConfig{
		PackageName:      "rust." + strings.ReplaceAll(pkg.Name, "-", "_"),
		Label:            pkg.Name,
		OpenGLESMajor:    2,
		OpenGLESMinor:    0,
		VersionCode:      1,
		VersionName:      pkg.Version,
		MinSdkVersion:    16,
		TargetSdkVersion: 26,
		BuildTargets:     DefaultBuildTargets,
	}

	if len(pkg.Metadata) == 0 || string(pkg.Metadata) == "null" {
		return cfg, nil
	}

	var meta packageMetadata
	if err := json.Unmarshal(pkg.Metadata, &meta); err != nil {
		return nil, &ConfigError{File: pkg.ManifestPath, Err: err}
	}
	a := meta.Android
	if a == nil {
		return cfg, nil
	}

	if a.PackageName != nil {
		cfg.PackageName = *a.PackageName
	}
	if a.Label != nil {
		cfg.Label = *a.Label
	}
	if a.Icon != nil {
		cfg.Icon = *a.Icon
	}
	if a.Fullscreen != nil {
		cfg.Fullscreen = *a.Fullscreen
	}
	if a.Res != nil {
		cfg.ResPath = filepath.Join(pkg.manifestDir(), *a.Res)
	}
	if a.Assets != nil {
		cfg.AssetsPath = filepath.Join(pkg.manifestDir(), *a.Assets)
	}
	if a.OpenGLESMajor != nil {
		cfg.OpenGLESMajor = *a.OpenGLESMajor
	}
	if a.OpenGLESMinor != nil {
		cfg.OpenGLESMinor = *a.OpenGLESMinor
	}
	if a.VersionCode != nil {
		cfg.VersionCode = *a.VersionCode
	}
	if a.VersionName != nil {
		cfg.VersionName = *a.VersionName
	}
	if a.MinSdkVersion != nil {
		cfg.MinSdkVersion = *a.MinSdkVersion
	}
	if a.TargetSdkVersion != nil {
		cfg.TargetSdkVersion = *a.TargetSdkVersion
	}
	if len(a.BuildTargets) > 0 {
		cfg.BuildTargets = make([]BuildTarget, 0, len(a.BuildTargets))
		for _, triple := range a.BuildTargets {
			t, err := ParseRustTriple(triple)
			if err != nil {
				return nil, &ConfigError{File: pkg.ManifestPath, Err: err}
			}
			cfg.BuildTargets = append(cfg.BuildTargets, t)
		}
	}
	if a.ApplicationAttributes != nil {
		cfg.ApplicationAttributes = a.ApplicationAttributes
	}
	if a.ActivityAttributes != nil {
		cfg.ActivityAttributes = a.ActivityAttributes
	}
	cfg.Permissions = a.Permissions
	cfg.Features = a.Features

	for _, p := range cfg.Permissions {
		if p.Name == "" {
			return nil, &ConfigError{File: pkg.ManifestPath, Err: fmt.Errorf("permission entry without a name")}
		}
	}
	for _, f := range cfg.Features {
		if f.Name == "" {
			return nil, &ConfigError{File: pkg.ManifestPath, Err: fmt.Errorf("feature entry without a name")}
		}
	}

	return cfg, nil
}

// AuxPackage carries the packaging contributions a dependency declares
// in a quad.toml next to its manifest: extra java sources, jars to
// compile or bundle against, service declarations, and one optional
// activity injection fragment. Java source paths stay relative as
// written; their layout inside the APK work dir mirrors the path after
// the java/ prefix.
type AuxPackage struct {
	PackageName        string
	Dir                string
	MainActivityInject string
	JavaFiles          []string
	ComptimeJars       []string
	RuntimeJars        []string
	JavaServices       []string
}

// absPath resolves one of the package's slash-separated relative paths.
func (a *AuxPackage) absPath(rel string) string {
	return filepath.Join(a.Dir, filepath.FromSlash(rel))
}

type quadToml struct {
	MainActivityInject string   `toml:"main_activity_inject"`
	JavaFiles          []string `toml:"java_files"`
	ComptimeJarFiles   []string `toml:"comptime_jar_files"`
	RuntimeJarFiles    []string `toml:"runtime_jar_files"`
	JavaServices       []string `toml:"java_services"`
}

// discoverAuxPackages scans every package in the dependency graph for a
// quad.toml and resolves its relative paths. Order follows the metadata
// package list so fragment accumulation stays deterministic.
func discoverAuxPackages(m *cargoMetadata) ([]AuxPackage, error) {
	var aux []AuxPackage
	for i := range m.Packages {
		pkg := &m.Packages[i]
		path := filepath.Join(pkg.manifestDir(), "quad.toml")
		if !fileExists(path) {
			continue
		}

		var qt quadToml
		if _, err := toml.DecodeFile(path, &qt); err != nil {
			return nil, &ConfigError{File: path, Err: err}
		}

		ap := AuxPackage{
			PackageName:  pkg.Name,
			Dir:          pkg.manifestDir(),
			JavaFiles:    qt.JavaFiles,
			ComptimeJars: qt.ComptimeJarFiles,
			RuntimeJars:  qt.RuntimeJarFiles,
			JavaServices: qt.JavaServices,
		}
		if qt.MainActivityInject != "" {
			ap.MainActivityInject = ap.absPath(qt.MainActivityInject)
		}
		aux = append(aux, ap)

		debugf("quad.toml found in %s (%s)\n", pkg.Name, path)
	}
	return aux, nil
}
