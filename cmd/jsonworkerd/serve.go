package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nullstack-solutions/iMock2-sub003/worker"
)

// maxLineBytes bounds one inbound NDJSON request.
const maxLineBytes = 64 << 20

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Pump NDJSON requests from stdin and responses to stdout",
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

			return serve(os.Stdin, os.Stdout, config, logger)
		},
	}
}

// serve runs the request/response loop until the input stream ends. Each
// line is one request; responses are written as single-line JSON in the
// order the engine produces them.
func serve(in io.Reader, out io.Writer, config workerConfig, logger *zap.Logger) error {
	enc := json.NewEncoder(out)
	var outMu sync.Mutex
	write := func(resp worker.Response) {
		outMu.Lock()
		defer outMu.Unlock()
		if err := enc.Encode(resp); err != nil {
			logger.Error("write response", zap.Error(err))
		}
	}

	w := worker.New(write, workerOptions(config, logger)...)
	logger.Info("worker ready",
		zap.String("task_timeout", config.taskTimeout().String()),
		zap.Bool("gjson_fast_path", !config.DisableGjson))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req worker.Request
		if err := json.Unmarshal(line, &req); err != nil {
			write(worker.Response{Type: worker.MsgError, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}
		w.Handle(req)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	// drain in-flight tasks before exiting
	w.Wait()
	logger.Info("input closed, shutting down")
	return nil
}
