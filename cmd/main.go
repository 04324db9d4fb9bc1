package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bibin-skaria/rootfs/deb"
	"github.com/bibin-skaria/rootfs/export"
	"github.com/bibin-skaria/rootfs/internal/types"
	"github.com/bibin-skaria/rootfs/oci"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "rootfs",
		Short: "Materialize container root filesystems from layered sources",
		Long: `rootfs flattens an ordered list of tar-format layers into a single
filesystem tree, honoring OCI overlayfs whiteout semantics, hardlinks,
symlinks and path-traversal safety. It extracts OCI image layouts and
overlays Debian package payloads onto existing root filesystems.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := types.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				config.LogLevel = logLevel
			}
			if logFormat != "" {
				config.LogFormat = logFormat
			}
			return setupLogging(config)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(newExtractCommand())
	cmd.AddCommand(newOverlayCommand())

	return cmd
}

func newExtractCommand() *cobra.Command {
	var outputTar string

	cmd := &cobra.Command{
		Use:   "extract <oci-layout-dir> <dest>",
		Short: "Extract an OCI image layout into a flattened rootfs directory",
		Long: `Extract reads index.json of an OCI image layout, takes the first
manifest's layers in order and merges them into a fresh destination
directory. An existing destination is removed first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := types.ExtractOptions{
				LayoutDir: args[0],
				Dest:      args[1],
				OutputTar: outputTar,
			}

			if err := oci.Extract(options.LayoutDir, options.Dest); err != nil {
				return fmt.Errorf("extract failed: %w", err)
			}

			if options.OutputTar != "" {
				if err := export.WriteTreeFile(options.Dest, options.OutputTar); err != nil {
					return fmt.Errorf("package rootfs: %w", err)
				}
				logrus.WithField("output", options.OutputTar).Info("rootfs tarball written")
			}

			fmt.Printf("Rootfs extracted to %s\n", options.Dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputTar, "output", "o", "", "Also package the merged tree as a plain tarball at this path")

	return cmd
}

func newOverlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlay <rootfs-dir> <package.deb>...",
		Short: "Overlay Debian package payloads onto an existing rootfs",
		Long: `Overlay unpacks the data.tar payload of each package and merges it
into the rootfs directory through the same layer pipeline used for image
extraction. Packages are applied in argument order; the rootfs directory
must already exist.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := types.OverlayOptions{
				RootfsDir: args[0],
				Packages:  args[1:],
			}

			if err := deb.Overlay(options.RootfsDir, options.Packages); err != nil {
				return fmt.Errorf("overlay failed: %w", err)
			}

			fmt.Printf("Applied %d package(s) to %s\n", len(options.Packages), options.RootfsDir)
			return nil
		},
	}

	return cmd
}

// setupLogging configures the process-wide logger. Flags win over the config
// file, the config file over the LOG_LEVEL environment variable, and info is
// the final fallback.
func setupLogging(config *types.Config) error {
	level := config.LogLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %v", level, err)
	}
	logrus.SetLevel(parsed)

	if config.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}
