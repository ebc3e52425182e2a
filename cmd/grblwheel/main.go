package main

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/grblwheel/config"
)

var (
	cfg *config.Config

	flagConfigFilePath string
	flagVerbose        bool
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load (default $GRBLWHEEL_CONFIG, config.yaml or config/config.yaml).")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging.")
	rootCmd.PersistentPreRunE = initConfig

	runCmd.Flags().String("port", "", "Serial port to stream to (default serial.port from config).")
	runCmd.Flags().Int("baud", 0, "Baud rate (default serial.baud from config).")
	runCmd.Flags().Int("start-line", 1, "1-based line to start at.")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("grblwheel failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "grblwheel",
	Short:         "Grbl jog wheel and G-code sender",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          doServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default).",
	RunE:  doServe,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range grblPorts() {
			if p.Description != "" && p.Description != p.Name {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name, p.Description)
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.Name)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Stream a G-code file to the controller.",
	Args:  cobra.ExactArgs(1),
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information.",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Fprintln(out, "grblwheel: version info not available")
			return
		}
		if cfg != nil && cfg.File != "" {
			fmt.Fprintf(out, "config:    %s\n", cfg.File)
		}
		fmt.Fprintf(out, "grblwheel: %s\n", info.Main.Version)
		fmt.Fprintf(out, "go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Fprintf(out, "commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Fprintf(out, "date:      %s\n", s.Value)
			}
		}
	},
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(flagConfigFilePath)
	if err != nil {
		return err
	}

	level := log.InfoLevel
	if cfg.LogLevel != "" {
		level, err = log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if flagVerbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		log.WithField("file", cfg.File).Debug("loaded config")
	}
	return nil
}
