package quadapk

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearConfigEnv blanks every environment override so the test sees only
// what it sets itself.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANDROID_SDK_ROOT", "ANDROID_HOME",
		"ANDROID_NDK_ROOT", "NDK_HOME",
		"CARGO_APK_BUILD_TOOLS", "CARGO_APK_PLATFORM",
		"QUAD_PUBLISH_ENDPOINT", "QUAD_PUBLISH_REGION", "QUAD_PUBLISH_BUCKET",
		"QUAD_PUBLISH_ACCESS_KEY", "QUAD_PUBLISH_SECRET_KEY", "QUAD_PUBLISH_PREFIX",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_MissingFileIsFine(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sdk.Root != "" || cfg.Ndk.Root != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfig_ParsesFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, `
sdk:
  root: /opt/android-sdk
  build_tools_version: "34.0.0"
ndk:
  root: /opt/android-ndk
publish:
  endpoint: https://storage.example.com
  bucket: builds
  access_key: AK
  secret_key: SK
  prefix: games
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sdk.Root != "/opt/android-sdk" || cfg.Sdk.BuildToolsVersion != "34.0.0" {
		t.Errorf("sdk = %+v", cfg.Sdk)
	}
	if cfg.Ndk.Root != "/opt/android-ndk" {
		t.Errorf("ndk = %+v", cfg.Ndk)
	}
	if cfg.Publish.Endpoint != "https://storage.example.com" || cfg.Publish.Bucket != "builds" {
		t.Errorf("publish = %+v", cfg.Publish)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "sdk: [not: a: mapping\n")

	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestLoadConfig_EnvironmentWins(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "sdk:\n  root: /from-file\n")

	t.Setenv("ANDROID_SDK_ROOT", "/from-env")
	t.Setenv("ANDROID_NDK_ROOT", "/ndk-from-env")
	t.Setenv("CARGO_APK_BUILD_TOOLS", "33.0.2")
	t.Setenv("CARGO_APK_PLATFORM", "30")
	t.Setenv("QUAD_PUBLISH_BUCKET", "env-bucket")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sdk.Root != "/from-env" {
		t.Errorf("Sdk.Root = %q, want the environment value", cfg.Sdk.Root)
	}
	if cfg.Ndk.Root != "/ndk-from-env" {
		t.Errorf("Ndk.Root = %q", cfg.Ndk.Root)
	}
	if cfg.Sdk.BuildToolsVersion != "33.0.2" {
		t.Errorf("BuildToolsVersion = %q", cfg.Sdk.BuildToolsVersion)
	}
	if cfg.Sdk.Platform != 30 {
		t.Errorf("Platform = %d, want 30", cfg.Sdk.Platform)
	}
	if cfg.Publish.Bucket != "env-bucket" {
		t.Errorf("Publish.Bucket = %q", cfg.Publish.Bucket)
	}
}

func TestLoadConfig_AndroidHomeFallback(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ANDROID_HOME", "/legacy-sdk")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sdk.Root != "/legacy-sdk" {
		t.Errorf("Sdk.Root = %q, want the ANDROID_HOME value", cfg.Sdk.Root)
	}
}

func TestSdkRoot_Unconfigured(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.SdkRoot()
	if err == nil || !strings.Contains(err.Error(), "Android SDK not configured") {
		t.Errorf("expected the guidance error, got %v", err)
	}
}

func TestNdkRoot(t *testing.T) {
	t.Run("explicit root wins", func(t *testing.T) {
		cfg := &Config{Ndk: NdkConfig{Root: "/opt/ndk"}}
		got, err := cfg.NdkRoot()
		if err != nil || got != "/opt/ndk" {
			t.Errorf("NdkRoot() = %q, %v", got, err)
		}
	})

	t.Run("ndk-bundle under the sdk", func(t *testing.T) {
		sdk := t.TempDir()
		bundled := filepath.Join(sdk, "ndk-bundle")
		if err := os.MkdirAll(bundled, 0o755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cfg := &Config{Sdk: SdkConfig{Root: sdk}}
		got, err := cfg.NdkRoot()
		if err != nil || got != bundled {
			t.Errorf("NdkRoot() = %q, %v", got, err)
		}
	})

	t.Run("newest side-by-side install", func(t *testing.T) {
		sdk := t.TempDir()
		for _, v := range []string{"21.4.7075529", "25.2.9519653", "23.1.7779620"} {
			if err := os.MkdirAll(filepath.Join(sdk, "ndk", v), 0o755); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		cfg := &Config{Sdk: SdkConfig{Root: sdk}}
		got, err := cfg.NdkRoot()
		want := filepath.Join(sdk, "ndk", "25.2.9519653")
		if err != nil || got != want {
			t.Errorf("NdkRoot() = %q, %v, want %q", got, err, want)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		cfg := &Config{}
		_, err := cfg.NdkRoot()
		if err == nil || !strings.Contains(err.Error(), "Android NDK not configured") {
			t.Errorf("expected the guidance error, got %v", err)
		}
	})
}

func TestBuildToolsDir(t *testing.T) {
	sdk := t.TempDir()
	for _, v := range []string{"30.0.3", "34.0.0", "33.0.2"} {
		if err := os.MkdirAll(filepath.Join(sdk, "build-tools", v), 0o755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	t.Run("newest when unset", func(t *testing.T) {
		cfg := &Config{Sdk: SdkConfig{Root: sdk}}
		got, err := cfg.BuildToolsDir()
		want := filepath.Join(sdk, "build-tools", "34.0.0")
		if err != nil || got != want {
			t.Errorf("BuildToolsDir() = %q, %v, want %q", got, err, want)
		}
	})

	t.Run("configured version", func(t *testing.T) {
		cfg := &Config{Sdk: SdkConfig{Root: sdk, BuildToolsVersion: "30.0.3"}}
		got, err := cfg.BuildToolsDir()
		want := filepath.Join(sdk, "build-tools", "30.0.3")
		if err != nil || got != want {
			t.Errorf("BuildToolsDir() = %q, %v, want %q", got, err, want)
		}
	})

	t.Run("configured version missing", func(t *testing.T) {
		cfg := &Config{Sdk: SdkConfig{Root: sdk, BuildToolsVersion: "29.0.0"}}
		_, err := cfg.BuildToolsDir()
		if err == nil || !strings.Contains(err.Error(), "not installed") {
			t.Errorf("expected the not-installed error, got %v", err)
		}
	})

	t.Run("no build-tools at all", func(t *testing.T) {
		cfg := &Config{Sdk: SdkConfig{Root: t.TempDir()}}
		if _, err := cfg.BuildToolsDir(); err == nil {
			t.Error("expected error for an sdk without build-tools")
		}
	})
}

func TestAndroidJar(t *testing.T) {
	sdk := t.TempDir()
	jar := filepath.Join(sdk, "platforms", "android-26", "android.jar")
	if err := os.MkdirAll(filepath.Dir(jar), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writeFile(t, jar, "PK")

	cfg := &Config{Sdk: SdkConfig{Root: sdk}}
	got, err := cfg.AndroidJar(26)
	if err != nil || got != jar {
		t.Errorf("AndroidJar(26) = %q, %v", got, err)
	}

	_, err = cfg.AndroidJar(30)
	var notFound *ToolNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ToolNotFoundError, got %T: %v", err, err)
	}
	if notFound.Tool != "android.jar" {
		t.Errorf("Tool = %q, want android.jar", notFound.Tool)
	}

	cfg.Sdk.Platform = 26
	got, err = cfg.AndroidJar(30)
	if err != nil || got != jar {
		t.Errorf("AndroidJar(30) with platform 26 = %q, %v", got, err)
	}
}
