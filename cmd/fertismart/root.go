// cmd/fertismart/root.go
package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fertismart/internal/common/config"
	"fertismart/internal/common/inference"
	"fertismart/internal/common/logger"
	"fertismart/internal/fertilizer"
)

type globalOptions struct {
	configPath string
	apiBase    string
	timeout    time.Duration
	verbose    bool
}

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	log      logger.Logger
	client   *inference.Client
	provider *fertilizer.MetadataProvider
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	a := &app{}

	root := &cobra.Command{
		Use:   "fertismart",
		Short: "Fertilizer recommendations from soil and crop readings",
		Long: `fertismart talks to the fertilizer inference service.

It can list the crops the service knows, request a recommendation for a set
of soil and weather readings, and manage the activity registry used by the
Camunda workers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: configs/config.yaml when present)")
	root.PersistentFlags().StringVar(&opts.apiBase, "api-base", "", "Inference service base URL (or set API_BASE)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout (default from config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newMetadataCmd(a))
	root.AddCommand(newPredictCmd(a))
	root.AddCommand(newRegistryCmd())

	return root
}

func (a *app) init(opts *globalOptions) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if opts.apiBase != "" {
		cfg.Inference.BaseURL = opts.apiBase
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	zapLog, err := logger.Build(level, "console", "stderr")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	timeout := cfg.Inference.RequestTimeout()
	if opts.timeout > 0 {
		timeout = opts.timeout
	}

	a.cfg = cfg
	a.zap = zapLog
	a.log = logger.NewZapAdapter(zapLog)
	a.client = inference.NewClient(inference.Config{BaseURL: cfg.Inference.BaseURL, Timeout: timeout}, a.log)
	a.provider = fertilizer.NewMetadataProvider(a.client, fertilizer.NewMemoryCache(), a.log,
		fertilizer.WithFetchTimeout(config.GetDuration(cfg.Inference.MetadataTimeout)),
	)
	return nil
}

// consoleNotifier prints transient notifications to w.
type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Success(msg string) {
	fmt.Fprintf(n.w, "✔ %s\n", msg)
}

func (n consoleNotifier) Error(msg string) {
	fmt.Fprintf(n.w, "✖ %s\n", msg)
}
