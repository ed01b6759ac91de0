package quadapk

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func testPackage(metadata string) *cargoPackage {
	pkg := &cargoPackage{
		ID:           "path+file:///work/my-game#0.1.0",
		Name:         "my-game",
		Version:      "0.1.0",
		ManifestPath: "/work/my-game/Cargo.toml",
	}
	if metadata != "" {
		pkg.Metadata = json.RawMessage(metadata)
	}
	return pkg
}

func TestResolveTargetConfig_Defaults(t *testing.T) {
	unit := CrateTarget{Kind: TargetKindBin, Name: "my-game", SrcPath: "/work/my-game/src/main.rs"}

	cfg, err := resolveTargetConfig(testPackage(""), unit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.PackageName != "rust.my_game" {
		t.Errorf("PackageName = %q, want %q", cfg.PackageName, "rust.my_game")
	}
	if cfg.Label != "my-game" {
		t.Errorf("Label = %q, want %q", cfg.Label, "my-game")
	}
	if cfg.OpenGLESMajor != 2 || cfg.OpenGLESMinor != 0 {
		t.Errorf("GLES = %d.%d, want 2.0", cfg.OpenGLESMajor, cfg.OpenGLESMinor)
	}
	if cfg.VersionCode != 1 || cfg.VersionName != "0.1.0" {
		t.Errorf("version = %d %q", cfg.VersionCode, cfg.VersionName)
	}
	if cfg.MinSdkVersion != 16 || cfg.TargetSdkVersion != 26 {
		t.Errorf("sdk levels = %d/%d, want 16/26", cfg.MinSdkVersion, cfg.TargetSdkVersion)
	}
	if !reflect.DeepEqual(cfg.BuildTargets, DefaultBuildTargets) {
		t.Errorf("BuildTargets = %v, want %v", cfg.BuildTargets, DefaultBuildTargets)
	}
}

func TestResolveTargetConfig_NullMetadata(t *testing.T) {
	unit := CrateTarget{Kind: TargetKindBin, Name: "my-game"}
	cfg, err := resolveTargetConfig(testPackage("null"), unit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PackageName != "rust.my_game" {
		t.Errorf("PackageName = %q, want the default", cfg.PackageName)
	}
}

func TestResolveTargetConfig_MetadataOverrides(t *testing.T) {
	meta := `{"android": {
		"package_name": "com.example.game",
		"label": "Great Game",
		"fullscreen": true,
		"res": "android/res",
		"assets": "assets",
		"opengles_version_major": 3,
		"opengles_version_minor": 1,
		"version_code": 42,
		"version_name": "1.2.3",
		"min_sdk_version": 23,
		"target_sdk_version": 30,
		"build_targets": ["x86_64-linux-android"],
		"application_attributes": {"android:debuggable": "true"},
		"activity_attributes": {"android:screenOrientation": "landscape"},
		"permission": [{"name": "android.permission.CAMERA", "max_sdk_version": 18}],
		"feature": [{"name": "android.hardware.camera"}]
	}}`

	unit := CrateTarget{Kind: TargetKindBin, Name: "my-game"}
	cfg, err := resolveTargetConfig(testPackage(meta), unit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.PackageName != "com.example.game" {
		t.Errorf("PackageName = %q", cfg.PackageName)
	}
	if cfg.Label != "Great Game" || !cfg.Fullscreen {
		t.Errorf("Label = %q, Fullscreen = %v", cfg.Label, cfg.Fullscreen)
	}
	if want := filepath.Join("/work/my-game", "android/res"); cfg.ResPath != want {
		t.Errorf("ResPath = %q, want %q", cfg.ResPath, want)
	}
	if want := filepath.Join("/work/my-game", "assets"); cfg.AssetsPath != want {
		t.Errorf("AssetsPath = %q, want %q", cfg.AssetsPath, want)
	}
	if cfg.OpenGLESMajor != 3 || cfg.OpenGLESMinor != 1 {
		t.Errorf("GLES = %d.%d, want 3.1", cfg.OpenGLESMajor, cfg.OpenGLESMinor)
	}
	if cfg.VersionCode != 42 || cfg.VersionName != "1.2.3" {
		t.Errorf("version = %d %q", cfg.VersionCode, cfg.VersionName)
	}
	if cfg.MinSdkVersion != 23 || cfg.TargetSdkVersion != 30 {
		t.Errorf("sdk levels = %d/%d", cfg.MinSdkVersion, cfg.TargetSdkVersion)
	}
	if !reflect.DeepEqual(cfg.BuildTargets, []BuildTarget{TargetX86_64}) {
		t.Errorf("BuildTargets = %v", cfg.BuildTargets)
	}
	if cfg.ApplicationAttributes["android:debuggable"] != "true" {
		t.Errorf("ApplicationAttributes = %v", cfg.ApplicationAttributes)
	}
	if cfg.ActivityAttributes["android:screenOrientation"] != "landscape" {
		t.Errorf("ActivityAttributes = %v", cfg.ActivityAttributes)
	}
	if len(cfg.Permissions) != 1 || cfg.Permissions[0].Name != "android.permission.CAMERA" {
		t.Errorf("Permissions = %v", cfg.Permissions)
	}
	if cfg.Permissions[0].MaxSdkVersion == nil || *cfg.Permissions[0].MaxSdkVersion != 18 {
		t.Error("permission max_sdk_version not decoded")
	}
	if len(cfg.Features) != 1 || cfg.Features[0].Name != "android.hardware.camera" {
		t.Errorf("Features = %v", cfg.Features)
	}
}

func TestResolveTargetConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		meta string
		want string
	}{
		{"unknown build target", `{"android": {"build_targets": ["mips64-linux-android"]}}`, "unsupported build target"},
		{"nameless permission", `{"android": {"permission": [{"max_sdk_version": 18}]}}`, "permission entry without a name"},
		{"nameless feature", `{"android": {"feature": [{"version": "1"}]}}`, "feature entry without a name"},
		{"malformed metadata", `{"android": {"version_code": "not a number"}}`, "malformed configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := CrateTarget{Kind: TargetKindBin, Name: "my-game"}
			_, err := resolveTargetConfig(testPackage(tt.meta), unit)
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestLibraryName(t *testing.T) {
	tests := []struct {
		packageName string
		want        string
	}{
		{"rust.my_game", "my_game"},
		{"com.example.game", "game"},
		{"game", "game"},
	}
	for _, tt := range tests {
		cfg := &TargetConfig{PackageName: tt.packageName}
		if got := cfg.LibraryName(); got != tt.want {
			t.Errorf("LibraryName(%q) = %q, want %q", tt.packageName, got, tt.want)
		}
	}
}

func TestDiscoverAuxPackages(t *testing.T) {
	plain := t.TempDir()
	augmented := t.TempDir()
	writeFile(t, filepath.Join(augmented, "quad.toml"), `
main_activity_inject = "inject.java"
java_files = ["java/com/example/Helper.java"]
comptime_jar_files = ["jars/sdk-stubs.jar"]
runtime_jar_files = ["jars/sdk.jar"]
java_services = ["com.example.HelperService"]
`)

	meta := &cargoMetadata{Packages: []cargoPackage{
		{Name: "miniquad", ManifestPath: filepath.Join(plain, "Cargo.toml")},
		{Name: "sdk-bindings", ManifestPath: filepath.Join(augmented, "Cargo.toml")},
	}}

	aux, err := discoverAuxPackages(meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aux) != 1 {
		t.Fatalf("expected 1 aux package, got %d", len(aux))
	}

	ap := aux[0]
	if ap.PackageName != "sdk-bindings" || ap.Dir != augmented {
		t.Errorf("aux package = %q in %q", ap.PackageName, ap.Dir)
	}
	if want := filepath.Join(augmented, "inject.java"); ap.MainActivityInject != want {
		t.Errorf("MainActivityInject = %q, want %q", ap.MainActivityInject, want)
	}
	if !reflect.DeepEqual(ap.JavaFiles, []string{"java/com/example/Helper.java"}) {
		t.Errorf("JavaFiles = %v", ap.JavaFiles)
	}
	if !reflect.DeepEqual(ap.ComptimeJars, []string{"jars/sdk-stubs.jar"}) {
		t.Errorf("ComptimeJars = %v", ap.ComptimeJars)
	}
	if !reflect.DeepEqual(ap.RuntimeJars, []string{"jars/sdk.jar"}) {
		t.Errorf("RuntimeJars = %v", ap.RuntimeJars)
	}
	if !reflect.DeepEqual(ap.JavaServices, []string{"com.example.HelperService"}) {
		t.Errorf("JavaServices = %v", ap.JavaServices)
	}
	if want := filepath.Join(augmented, "jars", "sdk.jar"); ap.absPath("jars/sdk.jar") != want {
		t.Errorf("absPath = %q, want %q", ap.absPath("jars/sdk.jar"), want)
	}
}

func TestDiscoverAuxPackages_MalformedToml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "quad.toml"), "java_files = [broken\n")

	meta := &cargoMetadata{Packages: []cargoPackage{
		{Name: "broken-dep", ManifestPath: filepath.Join(dir, "Cargo.toml")},
	}}

	_, err := discoverAuxPackages(meta)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cfgErr.File != filepath.Join(dir, "quad.toml") {
		t.Errorf("error names %q, want the quad.toml path", cfgErr.File)
	}
}

func TestDiscoverAuxPackages_NoneFound(t *testing.T) {
	meta := &cargoMetadata{Packages: []cargoPackage{
		{Name: "miniquad", ManifestPath: filepath.Join(t.TempDir(), "Cargo.toml")},
	}}
	aux, err := discoverAuxPackages(meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aux) != 0 {
		t.Errorf("expected no aux packages, got %v", aux)
	}
}
