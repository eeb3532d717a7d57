package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nullstack-solutions/iMock2-sub003/worker"
)

func newDiffCommand() *cobra.Command {
	var (
		mode           string
		ignoreKeyOrder bool
		watch          bool
	)

	cmd := &cobra.Command{
		Use:   "diff <left.json> <right.json>",
		Short: "Compare two JSON files structurally or line by line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(config.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			runner := newDiffRunner(config, logger, mode, ignoreKeyOrder)
			if err := runner.run(args[0], args[1]); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return runner.watch(args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "structural", "Diff mode: structural or line")
	cmd.Flags().BoolVar(&ignoreKeyOrder, "ignore-key-order", false, "Normalize object key order before diffing")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run the diff whenever either file changes")
	return cmd
}

type diffRunner struct {
	worker         *worker.Worker
	responses      chan worker.Response
	logger         *zap.Logger
	mode           string
	ignoreKeyOrder bool
}

func newDiffRunner(config workerConfig, logger *zap.Logger, mode string, ignoreKeyOrder bool) *diffRunner {
	r := &diffRunner{
		responses:      make(chan worker.Response, 16),
		logger:         logger,
		mode:           mode,
		ignoreKeyOrder: ignoreKeyOrder,
	}
	r.worker = worker.New(func(resp worker.Response) { r.responses <- resp }, workerOptions(config, logger)...)
	return r
}

// run submits one diff task and prints its result. Errors from the engine
// come back as messages, not Go errors, so they are surfaced here.
func (r *diffRunner) run(leftPath, rightPath string) error {
	left, err := os.ReadFile(leftPath)
	if err != nil {
		return err
	}
	right, err := os.ReadFile(rightPath)
	if err != nil {
		return err
	}

	taskID := uuid.NewString()
	payload, err := json.Marshal(map[string]interface{}{
		"leftText":       string(left),
		"rightText":      string(right),
		"mode":           r.mode,
		"ignoreKeyOrder": r.ignoreKeyOrder,
	})
	if err != nil {
		return err
	}
	r.worker.Handle(worker.Request{Type: worker.OpDiff, TaskID: taskID, Payload: payload})

	for resp := range r.responses {
		if resp.TaskID != taskID {
			continue
		}
		switch resp.Type {
		case worker.MsgError:
			return fmt.Errorf("diff failed: %s", resp.Error)
		case worker.MsgTaskCancelled:
			r.logger.Warn("diff cancelled", zap.String("reason", resp.Reason))
			return nil
		default:
			out, err := json.MarshalIndent(resp.Result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
	}
	return nil
}

// watch re-runs the diff whenever either file is written. Parent directories
// are watched so editor save-by-rename still delivers events.
func (r *diffRunner) watch(leftPath, rightPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := map[string]bool{
		filepath.Clean(leftPath):  true,
		filepath.Clean(rightPath): true,
	}
	dirs := map[string]bool{}
	for path := range watched {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	r.logger.Info("watching for changes", zap.Strings("files", []string{leftPath, rightPath}))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.Debug("file changed", zap.String("file", event.Name))
			if err := r.run(leftPath, rightPath); err != nil {
				r.logger.Error("diff run failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watch error", zap.Error(err))
		}
	}
}
