package quadapk

import (
	"context"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var (
	flagManifestPath string
	flagColor        string
	flagNoSign       bool
	flagNoStrip      bool

	flagRelease     bool
	flagDebugBuild  bool
	flagBins        []string
	flagExamples    []string
	flagAllExamples bool
	flagTargets     []string
)

var rootCmd = &cobra.Command{
	Use:           "cargo-quad-apk",
	Short:         "Builds Android APKs from miniquad applications",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("CARGO_QUAD_APK_DEBUG") == "1" {
			Debug = true
		}
		switch {
		case NoColor || flagColor == "never":
			NoColor = true
			color.Disable()
		case flagColor == "always":
			color.ForceColor()
		}
	},
}

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Compile the current package and assemble one APK per binary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(ConfigPath())
		if err != nil {
			return err
		}
		opts, err := buildOptions(flagRelease)
		if err != nil {
			return err
		}
		_, err = Build(cmd.Context(), cfg, opts)
		return err
	},
}

var installCmd = &cobra.Command{
	Use:     "install",
	Aliases: []string{"i"},
	Short:   "Build APKs and install them on the connected device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(ConfigPath())
		if err != nil {
			return err
		}
		// Installs default to release builds; --debug opts out.
		opts, err := buildOptions(!flagDebugBuild)
		if err != nil {
			return err
		}
		result, err := Build(cmd.Context(), cfg, opts)
		if err != nil {
			return err
		}
		return Install(cmd.Context(), cfg, result)
	},
}

var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"r"},
	Short:   "Build, install and start a single APK on the connected device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(ConfigPath())
		if err != nil {
			return err
		}
		opts, err := buildOptions(flagRelease)
		if err != nil {
			return err
		}
		result, err := Build(cmd.Context(), cfg, opts)
		if err != nil {
			return err
		}
		return RunOnDevice(cmd.Context(), cfg, result)
	},
}

var logcatCmd = &cobra.Command{
	Use:   "logcat [filter...]",
	Short: "Print the Android device log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(ConfigPath())
		if err != nil {
			return err
		}
		return Logcat(cmd.Context(), cfg, args)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload built APKs to the configured object store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(ConfigPath())
		if err != nil {
			return err
		}
		exe := NewExecutor(cmd.Context())
		return Publish(cmd.Context(), exe, cfg, flagManifestPath, flagRelease)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cargo-quad-apk %s (built %s)\n", version, buildDate)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagManifestPath, "manifest-path", "", "Path to Cargo.toml")
	pf.BoolVarP(&Verbose, "verbose", "v", false, "Use verbose output")
	pf.BoolVarP(&Quiet, "quiet", "q", false, "No progress output")
	pf.StringVar(&flagColor, "color", "auto", "Coloring: auto, always, never")
	pf.BoolVar(&flagNoSign, "nosign", false, "Skip the apksigner step and produce an unsigned APK")
	pf.BoolVar(&flagNoStrip, "nostrip", false, "Keep debug symbols even in release builds")

	for _, cmd := range []*cobra.Command{buildCmd, runCmd, uploadCmd} {
		cmd.Flags().BoolVar(&flagRelease, "release", false, "Build artifacts in release mode, with optimizations")
	}
	installCmd.Flags().BoolVar(&flagDebugBuild, "debug", false, "Build in debug mode instead of release mode")

	for _, cmd := range []*cobra.Command{buildCmd, installCmd, runCmd} {
		cmd.Flags().StringArrayVar(&flagBins, "bin", nil, "Build only the specified binary")
		cmd.Flags().StringArrayVar(&flagExamples, "example", nil, "Build only the specified example")
		cmd.Flags().BoolVar(&flagAllExamples, "all-examples", false, "Build all examples")
		cmd.Flags().StringArrayVar(&flagTargets, "target", nil, "Build for the target triple")
	}

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(logcatCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(versionCmd)
}

func buildOptions(release bool) (*BuildOptions, error) {
	opts := &BuildOptions{
		ManifestPath: flagManifestPath,
		Release:      release,
		NoSign:       flagNoSign,
		NoStrip:      flagNoStrip,
		Bins:         flagBins,
		Examples:     flagExamples,
		AllExamples:  flagAllExamples,
	}
	for _, t := range flagTargets {
		target, err := ParseRustTriple(t)
		if err != nil {
			return nil, err
		}
		opts.Targets = append(opts.Targets, target)
	}
	return opts, nil
}

// Execute runs the command line interface. Cargo invokes subcommands as
// `cargo-quad-apk quad-apk <args>`, so a leading quad-apk element is
// dropped before parsing.
func Execute(ctx context.Context) error {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "quad-apk" {
		args = args[1:]
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		colError.Println("Error:", err)
		return err
	}
	return nil
}
