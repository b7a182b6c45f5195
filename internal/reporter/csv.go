package reporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"firestige.xyz/flowstat/internal/flow"
)

func init() {
	Register("csv", func() Reporter { return &CSVReporter{} })
}

// CSVOptions configures the csv reporter.
type CSVOptions struct {
	Delimiter string `mapstructure:"delimiter"`
	Header    *bool  `mapstructure:"header"`
}

// CSVReporter writes tcp_flows.csv and udp_flows.csv, one row per flow in
// creation order.
type CSVReporter struct {
	comma  rune
	header bool
	files  []string
}

func (r *CSVReporter) Name() string { return "csv" }

func (r *CSVReporter) Init(cfg map[string]any) error {
	opts := CSVOptions{Delimiter: ","}
	if err := decodeOptions(cfg, &opts); err != nil {
		return err
	}
	if utf8.RuneCountInString(opts.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", opts.Delimiter)
	}
	r.comma, _ = utf8.DecodeRuneInString(opts.Delimiter)
	if r.comma == '"' || r.comma == '\r' || r.comma == '\n' || r.comma == utf8.RuneError {
		return fmt.Errorf("invalid delimiter %q", opts.Delimiter)
	}
	r.header = opts.Header == nil || *opts.Header
	return nil
}

func (r *CSVReporter) Report(ctx context.Context, run *Run) error {
	r.files = r.files[:0]
	for _, proto := range []string{protoTCP, protoUDP} {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(run.OutputDir, proto+"_flows.csv")
		if err := r.writeTable(path, run, proto); err != nil {
			return err
		}
		r.files = append(r.files, path)
	}
	return nil
}

func (r *CSVReporter) writeTable(path string, run *Run, proto string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	w.Comma = r.comma
	if r.header {
		if err := w.Write(header(proto)); err != nil {
			return err
		}
	}

	row := make([]string, 0, len(header(proto)))
	for _, entry := range tableFor(run, proto).Rows() {
		k, rec := entry.Key, entry.Record
		row = append(row[:0],
			k.SrcIP.String(), strconv.Itoa(int(k.SrcPort)),
			k.DstIP.String(), strconv.Itoa(int(k.DstPort)),
		)
		for _, side := range []*flow.Stats{&rec.Sender, &rec.Receiver} {
			for _, v := range statValues(proto, side) {
				row = append(row, strconv.FormatUint(v, 10))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *CSVReporter) Files() []string { return r.files }

func (r *CSVReporter) Close() error { return nil }
