package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb-nearest/pkg/config"
	"github.com/orneryd/nornicdb-nearest/pkg/gpu"
	"github.com/orneryd/nornicdb-nearest/pkg/logging"
	"github.com/orneryd/nornicdb-nearest/pkg/storage"
)

const defaultStorePath = "./data/centroids"

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	storePath  string
	backend    string
	batch      int
	logLevel   string
}

// app is the state shared by subcommands after flag parsing.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	a := &app{}

	root := &cobra.Command{
		Use:          "nearest",
		Short:        "Batch nearest-centroid assignment on GPU or CPU",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&opts.storePath, "store", "", "centroid store directory (default "+defaultStorePath+")")
	pf.StringVar(&opts.backend, "backend", "", "compute backend: auto, host or opencl")
	pf.IntVar(&opts.batch, "batch", 0, "points per dispatch (0 uses the scalar budget)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newAssignCmd(a),
		newCentroidsCmd(a),
		newDeviceCmd(a),
	)
	return root
}

// loadConfig reads the configuration file and applies flags that were set
// explicitly on the command line.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Path = opts.storePath
	}
	if flags.Changed("backend") {
		cfg.Device.Backend = opts.backend
	}
	if flags.Changed("batch") {
		cfg.BatchItems = opts.batch
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *app) openStore() (*storage.Store, error) {
	return storage.Open(a.cfg.Store.Path, storage.WithLogger(a.logger))
}

func (a *app) openAccelerator() (*gpu.Accelerator, error) {
	accel, err := gpu.NewAccelerator(a.cfg.AcceleratorConfig())
	if err != nil {
		return nil, err
	}
	if reason := accel.FallbackReason(); reason != nil {
		a.logger.Warn("using host device", "reason", reason)
	}
	return accel, nil
}

// openInput returns stdin for "" and "-", otherwise the named file.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
