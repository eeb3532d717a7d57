package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type workerConfig struct {
	// TaskTimeout is a Go duration string, e.g. "30s".
	TaskTimeout string `yaml:"task_timeout" json:"task_timeout"`
	ResultCap   int    `yaml:"result_cap" json:"result_cap"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	// DisableGjson turns off the gjson fast path for concrete queries.
	DisableGjson bool `yaml:"disable_gjson" json:"disable_gjson"`
}

func defaultConfig() workerConfig {
	return workerConfig{
		TaskTimeout: "30s",
		LogLevel:    "info",
	}
}

func loadConfig(path string) (workerConfig, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(payload, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	if _, err := time.ParseDuration(config.TaskTimeout); err != nil {
		return config, fmt.Errorf("invalid task_timeout %q: %w", config.TaskTimeout, err)
	}
	return config, nil
}

func (c workerConfig) taskTimeout() time.Duration {
	d, err := time.ParseDuration(c.TaskTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
