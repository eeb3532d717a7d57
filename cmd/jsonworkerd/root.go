package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nullstack-solutions/iMock2-sub003/jsonpath"
	"github.com/nullstack-solutions/iMock2-sub003/worker"
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "jsonworkerd",
		Short:        "Background JSON worker for the mock-server admin console",
		Long:         "jsonworkerd runs the admin console's background JSON engine: formatting,\nvalidation, JSONPath queries and structural diffs with rename detection,\nscheduled under a last-wins/timeout task discipline.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	root.AddCommand(newServeCommand())
	root.AddCommand(newDiffCommand())
	return root
}

// newLogger builds a stderr logger; stdout belongs to the message protocol.
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = parsed
	}
	return cfg.Build()
}

func workerOptions(config workerConfig, logger *zap.Logger) []worker.Option {
	options := []worker.Option{
		worker.WithLogger(logger),
		worker.WithTaskTimeout(config.taskTimeout()),
	}
	if config.ResultCap > 0 {
		options = append(options, worker.WithResultCap(config.ResultCap))
	}
	if !config.DisableGjson {
		options = append(options, worker.WithCapability(jsonpath.GjsonCapability{}))
	}
	return options
}
