package reporter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"

	"firestige.xyz/flowstat/internal/flow"
)

func init() {
	Register("npy", func() Reporter { return &NPYReporter{} })
}

// NPYReporter writes tcp_flows.npy and udp_flows.npy: one float64 matrix
// per protocol with the csv columns, addresses stored as their 32-bit
// numeric value. A table without flows is written with shape (0, cols).
type NPYReporter struct {
	files []string
}

func (r *NPYReporter) Name() string { return "npy" }

func (r *NPYReporter) Init(cfg map[string]any) error {
	return decodeOptions(cfg, &struct{}{})
}

func (r *NPYReporter) Report(ctx context.Context, run *Run) error {
	r.files = r.files[:0]
	for _, proto := range []string{protoTCP, protoUDP} {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(run.OutputDir, proto+"_flows.npy")
		if err := writeNPY(path, tableFor(run, proto), proto); err != nil {
			return err
		}
		r.files = append(r.files, path)
	}
	return nil
}

// flowMatrix lays out one row per flow. An empty table yields a
// (0, cols) matrix.
func flowMatrix(t *flow.Table, proto string) *mat.Dense {
	rows := t.Rows()
	cols := len(header(proto))
	if len(rows) == 0 {
		// mat.NewDense refuses zero dimensions.
		var m mat.Dense
		m.SetRawMatrix(blas64.General{Rows: 0, Cols: cols, Stride: cols})
		return &m
	}
	m := mat.NewDense(len(rows), cols, nil)
	for i, entry := range rows {
		k, rec := entry.Key, entry.Record
		vals := []float64{
			float64(addrValue(k.SrcIP)), float64(k.SrcPort),
			float64(addrValue(k.DstIP)), float64(k.DstPort),
		}
		for _, side := range []*flow.Stats{&rec.Sender, &rec.Receiver} {
			for _, v := range statValues(proto, side) {
				vals = append(vals, float64(v))
			}
		}
		m.SetRow(i, vals)
	}
	return m
}

func writeNPY(path string, t *flow.Table, proto string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return npyio.Write(f, flowMatrix(t, proto))
}

func (r *NPYReporter) Files() []string { return r.files }

func (r *NPYReporter) Close() error { return nil }
