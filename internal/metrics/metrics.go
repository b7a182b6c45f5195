// Package metrics implements Prometheus run metrics.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/flowstat/internal/core"
)

const namespace = "flowstat"

// Reject reasons used as label values.
const (
	ReasonTooShort         = "too_short"
	ReasonNotIPv4          = "not_ipv4"
	ReasonUnsupportedProto = "unsupported_proto"
	ReasonOther            = "other"
)

// Close reasons used as label values.
const (
	CloseFinRst = "fin_rst"
	CloseIdle   = "idle"
)

// Metrics holds the collectors of one analysis run. Each run gets its
// own registry so repeated runs in one process do not share counters.
type Metrics struct {
	Registry *prometheus.Registry

	// FramesRead counts records read from the source
	FramesRead prometheus.Counter

	// FramesRejected counts frames discarded by the decoder, by reason
	FramesRejected *prometheus.CounterVec

	// FramesFiltered counts frames dropped by the port prefilter
	FramesFiltered prometheus.Counter

	// FlowsCreated counts flow records created, by protocol
	FlowsCreated *prometheus.CounterVec

	// FlowsClosed counts closed flow directions, by protocol and reason
	FlowsClosed *prometheus.CounterVec

	// FlowTableSize tracks the number of flows per protocol table
	FlowTableSize *prometheus.GaugeVec

	// RunDurationSeconds records the wall time of the run
	RunDurationSeconds prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FramesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_read_total",
			Help:      "Total number of frames read from the capture source",
		}),
		FramesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Total number of frames discarded during decoding",
		}, []string{"reason"}),
		FramesFiltered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_filtered_total",
			Help:      "Total number of frames dropped by the port filter",
		}),
		FlowsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_created_total",
			Help:      "Total number of flow records created",
		}, []string{"protocol"}),
		FlowsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_directions_closed_total",
			Help:      "Total number of flow directions closed",
		}, []string{"protocol", "reason"}),
		FlowTableSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_table_size",
			Help:      "Current number of flows in the flow table",
		}, []string{"protocol"}),
		RunDurationSeconds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time spent processing the trace",
		}),
	}
}

// RejectReason maps a decoder error to its label value.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, core.ErrPacketTooShort):
		return ReasonTooShort
	case errors.Is(err, core.ErrNotIPv4):
		return ReasonNotIPv4
	case errors.Is(err, core.ErrUnsupportedProto):
		return ReasonUnsupportedProto
	default:
		return ReasonOther
	}
}

// WriteTextfile writes all collected metrics in the text exposition
// format, suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
