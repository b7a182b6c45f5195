// Package pipeline implements pipeline construction.
package pipeline

import (
	"fmt"
	"time"

	"firestige.xyz/flowstat/internal/config"
	"firestige.xyz/flowstat/internal/core/decoder"
	"firestige.xyz/flowstat/internal/flow"
	"firestige.xyz/flowstat/internal/metrics"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config   Config
	ports    []uint16
	local    string
	dispatch string
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Workers:   1,
			BatchSize: 1024, // default
		},
	}
}

// FromConfig copies engine and filter settings from a loaded configuration.
func (b *Builder) FromConfig(cfg *config.Config) *Builder {
	return b.WithWorkers(cfg.Engine.Workers).
		WithBatchSize(cfg.Engine.BatchSize).
		WithUDPIdleTimeout(cfg.Engine.UDPIdleTimeout).
		WithLocal(cfg.Engine.Local).
		WithDispatchStrategy(cfg.Engine.Dispatch).
		WithPorts(cfg.FilterPorts()...)
}

// WithDecoder sets the packet decoder. It takes precedence over WithPorts.
func (b *Builder) WithDecoder(d decoder.Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithPorts restricts the standard decoder to the given ports.
func (b *Builder) WithPorts(ports ...uint16) *Builder {
	b.ports = ports
	return b
}

// WithLocal sets the initiator predicate from "", "any", "private" or a CIDR.
func (b *Builder) WithLocal(expr string) *Builder {
	b.local = expr
	return b
}

// WithClassifier sets the initiator predicate directly.
func (b *Builder) WithClassifier(c flow.Classifier) *Builder {
	b.config.Classifier = c
	return b
}

// WithUDPIdleTimeout sets the UDP idle closure threshold.
func (b *Builder) WithUDPIdleTimeout(d time.Duration) *Builder {
	b.config.UDPIdleTimeout = d
	return b
}

// WithWorkers sets the number of shards.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithBatchSize sets the number of frames per broadcast batch.
func (b *Builder) WithBatchSize(size int) *Builder {
	b.config.BatchSize = size
	return b
}

// WithDispatchStrategy selects the shard dispatch strategy by name.
func (b *Builder) WithDispatchStrategy(name string) *Builder {
	b.dispatch = name
	return b
}

// WithMetrics attaches Prometheus collectors.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.config.Metrics = m
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	cfg := b.config

	if cfg.Classifier == nil {
		c, err := flow.ParseClassifier(b.local)
		if err != nil {
			return nil, err
		}
		cfg.Classifier = c
	}

	if cfg.Dispatch == nil {
		d, err := NewDispatchStrategy(b.dispatch)
		if err != nil {
			return nil, err
		}
		cfg.Dispatch = d
	}

	if cfg.Decoder == nil {
		d, err := decoder.NewStandardDecoder(decoder.Config{Ports: b.ports})
		if err != nil {
			return nil, fmt.Errorf("build decoder: %w", err)
		}
		cfg.Decoder = d
	}

	return New(cfg)
}
