package quadapk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds machine-level settings: where the SDK, NDK and JDK live
// and, optionally, where built packages get published. Project-level
// settings live in the crate manifest, not here.
type Config struct {
	Sdk     SdkConfig     `yaml:"sdk"`
	Ndk     NdkConfig     `yaml:"ndk"`
	Publish PublishConfig `yaml:"publish"`
}

type SdkConfig struct {
	Root              string `yaml:"root"`
	BuildToolsVersion string `yaml:"build_tools_version"`
	Platform          int    `yaml:"platform"`
}

type NdkConfig struct {
	Root string `yaml:"root"`
}

// PublishConfig configures the optional S3-compatible artifact upload.
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

// ConfigPath returns the machine config location under the user config
// dir. The file is optional.
func ConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "cargo-quad-apk", "config.yml")
}

// LoadConfig reads the machine config file, then merges environment
// overrides on top. A missing file is fine; a present but unparsable
// file is not.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &ConfigError{File: path, Err: err}
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// Merge environment overrides; the environment always wins.
func mergeEnvOverrides(cfg *Config) {
	if v := firstEnv("ANDROID_SDK_ROOT", "ANDROID_HOME"); v != "" {
		cfg.Sdk.Root = v
	}
	if v := firstEnv("ANDROID_NDK_ROOT", "NDK_HOME"); v != "" {
		cfg.Ndk.Root = v
	}
	if v := os.Getenv("CARGO_APK_BUILD_TOOLS"); v != "" {
		cfg.Sdk.BuildToolsVersion = v
	}
	if v := os.Getenv("CARGO_APK_PLATFORM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sdk.Platform = n
		} else {
			warnf("Ignoring CARGO_APK_PLATFORM=%q: not a number\n", v)
		}
	}

	if v := os.Getenv("QUAD_PUBLISH_ENDPOINT"); v != "" {
		cfg.Publish.Endpoint = v
	}
	if v := os.Getenv("QUAD_PUBLISH_REGION"); v != "" {
		cfg.Publish.Region = v
	}
	if v := os.Getenv("QUAD_PUBLISH_BUCKET"); v != "" {
		cfg.Publish.Bucket = v
	}
	if v := os.Getenv("QUAD_PUBLISH_ACCESS_KEY"); v != "" {
		cfg.Publish.AccessKey = v
	}
	if v := os.Getenv("QUAD_PUBLISH_SECRET_KEY"); v != "" {
		cfg.Publish.SecretKey = v
	}
	if v := os.Getenv("QUAD_PUBLISH_PREFIX"); v != "" {
		cfg.Publish.Prefix = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// SdkRoot resolves the SDK location or explains how to provide one.
func (c *Config) SdkRoot() (string, error) {
	if c.Sdk.Root != "" {
		return c.Sdk.Root, nil
	}
	return "", fmt.Errorf("Android SDK not configured: set ANDROID_SDK_ROOT (or ANDROID_HOME), or sdk.root in %s", ConfigPath())
}

// NdkRoot resolves the NDK location, falling back to the SDK's bundled
// ndk-bundle directory when present.
func (c *Config) NdkRoot() (string, error) {
	if c.Ndk.Root != "" {
		return c.Ndk.Root, nil
	}
	if c.Sdk.Root != "" {
		bundled := filepath.Join(c.Sdk.Root, "ndk-bundle")
		if dirExists(bundled) {
			return bundled, nil
		}
		// Side-by-side NDK installs live under <sdk>/ndk/<version>.
		if versions, err := os.ReadDir(filepath.Join(c.Sdk.Root, "ndk")); err == nil && len(versions) > 0 {
			names := make([]string, 0, len(versions))
			for _, v := range versions {
				if v.IsDir() {
					names = append(names, v.Name())
				}
			}
			if len(names) > 0 {
				sort.Strings(names)
				return filepath.Join(c.Sdk.Root, "ndk", names[len(names)-1]), nil
			}
		}
	}
	return "", fmt.Errorf("Android NDK not configured: set ANDROID_NDK_ROOT (or NDK_HOME), or ndk.root in %s", ConfigPath())
}

// BuildToolsDir resolves the SDK build-tools directory for the configured
// version, or the newest installed one when unset.
func (c *Config) BuildToolsDir() (string, error) {
	root, err := c.SdkRoot()
	if err != nil {
		return "", err
	}
	base := filepath.Join(root, "build-tools")

	if c.Sdk.BuildToolsVersion != "" {
		dir := filepath.Join(base, c.Sdk.BuildToolsVersion)
		if !dirExists(dir) {
			return "", fmt.Errorf("build-tools %s not installed under %s", c.Sdk.BuildToolsVersion, base)
		}
		return dir, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("no build-tools installed under %s: %w", base, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no build-tools installed under %s", base)
	}
	sort.Strings(versions)
	return filepath.Join(base, versions[len(versions)-1]), nil
}

// AndroidJar resolves the platform stub jar. A configured sdk.platform
// wins over the unit's target SDK level, for machines whose installed
// platform does not match the project.
func (c *Config) AndroidJar(targetSdk int) (string, error) {
	root, err := c.SdkRoot()
	if err != nil {
		return "", err
	}
	level := targetSdk
	if c.Sdk.Platform != 0 {
		level = c.Sdk.Platform
	}
	jar := filepath.Join(root, "platforms", fmt.Sprintf("android-%d", level), "android.jar")
	if !fileExists(jar) {
		return "", toolNotFound("android.jar", jar)
	}
	return jar, nil
}
