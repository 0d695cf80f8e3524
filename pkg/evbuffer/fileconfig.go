package evbuffer

import (
	"github.com/fluxorio/evbuffer/pkg/config"
	"github.com/fluxorio/evbuffer/pkg/evbuffer/dispatch"
	"github.com/prometheus/client_golang/prometheus"
)

// FileConfig is the on-disk (YAML or JSON, auto-detected by extension)
// counterpart of Config: the subset of settings that make sense to pin in
// a deployment manifest rather than construct in code.
type FileConfig struct {
	Locking bool `yaml:"locking" json:"locking"`

	DefaultReadSize int `yaml:"default_read_size" json:"default_read_size"`

	// Loop selects the deferred-dispatch binding: "sync" (nil Loop,
	// callbacks run under the lock), "reactor" (dispatch.ReactorLoop), or
	// "pooled" (dispatch.PooledLoop). Default "sync".
	Loop string `yaml:"loop" json:"loop"`

	// LoopWorkers is PooledLoop's worker count when Loop == "pooled".
	LoopWorkers int `yaml:"loop_workers" json:"loop_workers"`

	// LoopMailboxSize bounds each reactor worker's task queue.
	LoopMailboxSize int `yaml:"loop_mailbox_size" json:"loop_mailbox_size"`

	// MetricsEnabled registers a Metrics instance against the default
	// Prometheus registerer.
	MetricsEnabled bool `yaml:"metrics_enabled" json:"metrics_enabled"`
}

// LoadFileConfig reads path (YAML or JSON, by extension) into a FileConfig.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	if err := config.Load(path, &fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// Config materializes a FileConfig into a runtime Config. Logger and an
// externally-managed Metrics registerer are not expressible on disk and
// must be set by the caller after Config returns, if needed.
func (fc FileConfig) Config() Config {
	cfg := Config{
		Locking:         fc.Locking,
		DefaultReadSize: fc.DefaultReadSize,
	}
	switch fc.Loop {
	case "reactor":
		cfg.Loop = newReactorLoopFromFileConfig(fc)
	case "pooled":
		cfg.Loop = newPooledLoopFromFileConfig(fc)
	}
	if fc.MetricsEnabled {
		cfg.Metrics = defaultMetrics()
	}
	return cfg
}

const defaultLoopMailboxSize = 1024

func newReactorLoopFromFileConfig(fc FileConfig) dispatch.Loop {
	size := fc.LoopMailboxSize
	if size <= 0 {
		size = defaultLoopMailboxSize
	}
	return dispatch.NewReactorLoop(size)
}

func newPooledLoopFromFileConfig(fc FileConfig) dispatch.Loop {
	size := fc.LoopMailboxSize
	if size <= 0 {
		size = defaultLoopMailboxSize
	}
	workers := fc.LoopWorkers
	if workers <= 0 {
		workers = 4
	}
	return dispatch.NewPooledLoop(workers, size)
}

var defaultMetricsRegisterer = prometheus.WrapRegistererWith(
	prometheus.Labels{"component": "evbuffer"}, prometheus.DefaultRegisterer)

func defaultMetrics() *Metrics {
	return NewMetrics(defaultMetricsRegisterer)
}
