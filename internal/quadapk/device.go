package quadapk

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// sortedRefs returns the result's units in a stable order.
func sortedRefs(m map[UnitRef]string) []UnitRef {
	refs := make([]UnitRef, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// Install pushes every built APK to the connected device, verifying
// checksums first when sidecars are present.
func Install(ctx context.Context, cfg *Config, result *BuildResult) error {
	exe := NewExecutor(ctx)
	adb, err := findAdb(cfg)
	if err != nil {
		return err
	}

	for _, ref := range sortedRefs(result.Apks) {
		apk := result.Apks[ref]
		if err := verifyChecksumSidecar(apk); err != nil {
			return err
		}

		stepf("Installing apk '%s' to the device\n", filepath.Base(apk))
		cmd := exec.Command(adb, "install", "-r", apk)
		if err := exe.Run(cmd); err != nil {
			return fmt.Errorf("adb install failed: %w", err)
		}
	}
	return nil
}

// RunOnDevice installs the build and launches its activity. The result
// must hold exactly one unit; launching several at once has no sensible
// foreground semantics.
func RunOnDevice(ctx context.Context, cfg *Config, result *BuildResult) error {
	if len(result.Apks) != 1 {
		return fmt.Errorf("run needs exactly one target, got %d; select one with --bin or --example", len(result.Apks))
	}
	if err := Install(ctx, cfg, result); err != nil {
		return err
	}

	adb, err := findAdb(cfg)
	if err != nil {
		return err
	}
	exe := NewExecutor(ctx)

	for ref := range result.Apks {
		pkg := strings.ReplaceAll(result.Packages[ref], "-", "_")
		stepf("Starting %s\n", pkg)
		cmd := exec.Command(adb, "shell", "am", "start", "-n", pkg+"/.MainActivity")
		if err := exe.Run(cmd); err != nil {
			return fmt.Errorf("failed to start activity: %w", err)
		}
	}
	return nil
}

// Logcat streams the device log until interrupted. Extra arguments are
// passed straight through to adb.
func Logcat(ctx context.Context, cfg *Config, extra []string) error {
	adb, err := findAdb(cfg)
	if err != nil {
		return err
	}
	stepf("Starting logcat\n")

	args := append([]string{"logcat"}, extra...)
	cmd := exec.Command(adb, args...)
	cmd.Stdin = os.Stdin

	exe := NewExecutor(ctx)
	return exe.Run(cmd)
}
