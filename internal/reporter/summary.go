package reporter

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/flowstat/internal/flow"
)

func init() {
	Register("summary", func() Reporter { return &SummaryReporter{} })
}

// Summary is the document written to summary.yaml.
type Summary struct {
	RunID     string       `yaml:"run_id"`
	Input     string       `yaml:"input"`
	StartedAt time.Time    `yaml:"started_at"`
	Duration  string       `yaml:"duration"`
	Workers   int          `yaml:"workers"`
	Frames    FrameSummary `yaml:"frames"`
	TCP       FlowSummary  `yaml:"tcp"`
	UDP       FlowSummary  `yaml:"udp"`
}

type FrameSummary struct {
	Read     uint64 `yaml:"read"`
	Decoded  uint64 `yaml:"decoded"`
	Rejected uint64 `yaml:"rejected"`
	Filtered uint64 `yaml:"filtered"`
	Ignored  uint64 `yaml:"ignored"`
}

// FlowSummary totals one protocol table. Answered counts flows whose
// receiver direction was opened; OneSided counts flows that never saw a
// packet from the receiver.
type FlowSummary struct {
	Flows    int    `yaml:"flows"`
	Packets  uint64 `yaml:"packets"`
	Bytes    uint64 `yaml:"bytes"`
	Closed   uint64 `yaml:"closed"`
	Answered int    `yaml:"answered"`
	OneSided int    `yaml:"one_sided"`
}

// SummaryReporter writes run totals to summary.yaml.
type SummaryReporter struct {
	files []string
}

func (r *SummaryReporter) Name() string { return "summary" }

func (r *SummaryReporter) Init(cfg map[string]any) error {
	return decodeOptions(cfg, &struct{}{})
}

// Summarize builds the summary document of a run.
func Summarize(run *Run) *Summary {
	st := run.Result.Stats
	s := &Summary{
		RunID:     run.ID,
		Input:     run.Input,
		StartedAt: run.StartedAt.UTC(),
		Duration:  st.Duration.String(),
		Workers:   st.Workers,
		Frames: FrameSummary{
			Read:     st.Read,
			Decoded:  st.Decoded,
			Rejected: st.Rejected,
			Filtered: st.Filtered,
			Ignored:  st.Ignored,
		},
		TCP: FlowSummary{Flows: st.TCPFlows, Packets: st.TCPPackets, Closed: st.TCPClosed},
		UDP: FlowSummary{Flows: st.UDPFlows, Packets: st.UDPPackets, Closed: st.UDPExpired},
	}
	tally(&s.TCP, tableFor(run, protoTCP))
	tally(&s.UDP, tableFor(run, protoUDP))
	return s
}

func tally(fs *FlowSummary, t *flow.Table) {
	t.Range(func(_ flow.Key, rec *flow.Record) bool {
		fs.Bytes += rec.Sender.Bytes + rec.Receiver.Bytes
		if rec.Receiver.Opened() {
			fs.Answered++
		}
		if !rec.Receiver.Touched() {
			fs.OneSided++
		}
		return true
	})
}

func (r *SummaryReporter) Report(ctx context.Context, run *Run) error {
	r.files = r.files[:0]
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := yaml.Marshal(Summarize(run))
	if err != nil {
		return err
	}
	path := filepath.Join(run.OutputDir, "summary.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	r.files = append(r.files, path)
	return nil
}

func (r *SummaryReporter) Files() []string { return r.files }

func (r *SummaryReporter) Close() error { return nil }
