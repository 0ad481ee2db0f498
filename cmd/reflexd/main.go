// cmd/reflexd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/app"
	"github.com/rovshanmuradov/reflex/internal/config"
	"github.com/rovshanmuradov/reflex/internal/export"
	"github.com/rovshanmuradov/reflex/internal/logger"
	"github.com/rovshanmuradov/reflex/internal/scenario"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "reflexd",
		Short:         "Reflection token engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(inspectCmd(&configPath))
	return root
}

// setup loads the config and builds the logger it describes.
func setup(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	lg, err := logger.New(&logger.Config{
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxAge:      cfg.Log.MaxAge,
		MaxBackups:  cfg.Log.MaxBackups,
		Compress:    cfg.Log.Compress,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, lg, nil
}

func runCmd(configPath *string) *cobra.Command {
	var (
		scenarioPath string
		exportFormat string
		exportDir    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a scenario against the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lg, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer lg.Sync()

			if scenarioPath == "" {
				scenarioPath = cfg.ScenarioFile
			}
			if scenarioPath == "" {
				return fmt.Errorf("no scenario given: set --scenario or scenario_file")
			}
			s, err := scenario.Load(scenarioPath, lg.Logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			runner := app.NewRunner(cfg, lg.WithComponent("app"))
			if err := runner.Initialize(ctx); err != nil {
				lg.LogError("Failed to initialize", err)
				return shutdown(runner, err)
			}

			done := lg.TrackPerformance("scenario")
			report, runErr := runner.Run(ctx, s)
			done()
			if report != nil {
				fmt.Print(report.FormatText())
			}
			if runErr != nil {
				return shutdown(runner, runErr)
			}
			if err := shutdown(runner, nil); err != nil {
				return err
			}

			if exportFormat != "" {
				paths, err := runner.Export(export.ExportFormat(exportFormat), exportDir)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				for _, p := range paths {
					lg.Info("Exported", zap.String("file", p))
				}
			}
			if !report.OK() {
				return fmt.Errorf("scenario %s: %d of %d steps failed", report.Name, report.Failed, len(report.Steps))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario YAML file (defaults to scenario_file)")
	cmd.Flags().StringVar(&exportFormat, "export", "", "export transfers after the run: csv or json")
	cmd.Flags().StringVar(&exportDir, "export-dir", "exports", "directory for exported files")
	return cmd
}

// shutdown closes the runner and returns cause, or the shutdown error when
// there is no cause.
func shutdown(runner *app.Runner, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := runner.Shutdown(ctx); err != nil {
		if cause != nil {
			return fmt.Errorf("%w (shutdown: %v)", cause, err)
		}
		return err
	}
	return cause
}
