// Package pipeline implements the flow reconstruction engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc"

	"firestige.xyz/flowstat/internal/core"
	"firestige.xyz/flowstat/internal/core/decoder"
	"firestige.xyz/flowstat/internal/flow"
	"firestige.xyz/flowstat/internal/log"
	"firestige.xyz/flowstat/internal/metrics"
	"firestige.xyz/flowstat/internal/source"
)

// Result is the output of one run: one flow table per protocol.
type Result struct {
	TCP   *flow.Table
	UDP   *flow.Table
	Stats Stats
}

// Pipeline turns a stream of captured frames into flow tables.
//
// With one worker every frame is decoded and applied before the next is
// read. With more workers, decoded frames are batched and broadcast to
// shards that each own the flows hashing to them; the merged result is
// identical to the serial one.
type Pipeline struct {
	decoder     decoder.Decoder
	classifier  flow.Classifier
	idleTimeout time.Duration
	workers     int
	batchSize   int
	dispatch    DispatchStrategy

	metrics *Metrics
	prom    *metrics.Metrics
	log     log.Logger
}

// Config contains pipeline configuration.
type Config struct {
	Decoder        decoder.Decoder
	Classifier     flow.Classifier  // nil = any address may open TCP flows
	UDPIdleTimeout time.Duration    // 0 = flow.DefaultUDPIdleTimeout
	Workers        int              // <= 1 = serial
	BatchSize      int              // frames per broadcast batch
	Dispatch       DispatchStrategy // nil = FlowHashStrategy
	Metrics        *metrics.Metrics // optional Prometheus collectors
}

// New creates a new pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Decoder == nil {
		d, err := decoder.NewStandardDecoder(decoder.Config{})
		if err != nil {
			return nil, err
		}
		cfg.Decoder = d
	}
	if cfg.Classifier == nil {
		cfg.Classifier = flow.AnyAddress{}
	}
	if cfg.UDPIdleTimeout <= 0 {
		cfg.UDPIdleTimeout = flow.DefaultUDPIdleTimeout
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1024 // Default batch size
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = FlowHashStrategy{}
	}

	return &Pipeline{
		decoder:     cfg.Decoder,
		classifier:  cfg.Classifier,
		idleTimeout: cfg.UDPIdleTimeout,
		workers:     cfg.Workers,
		batchSize:   cfg.BatchSize,
		dispatch:    cfg.Dispatch,
		metrics:     &Metrics{},
		prom:        cfg.Metrics,
		log:         log.GetLogger().WithField("prefix", "pipeline"),
	}, nil
}

// Run consumes src until it is exhausted. A read error or context
// cancellation stops the run; the tables built so far are returned
// together with the error.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (*Result, error) {
	p.metrics.Reset()
	start := time.Now()

	p.log.WithFields(map[string]interface{}{
		"workers":          p.workers,
		"local":            p.classifier.String(),
		"udp_idle_timeout": p.idleTimeout.String(),
		"dispatch":         p.dispatch.Name(),
	}).Info("pipeline starting")

	var (
		shards []*shard
		err    error
	)
	if p.workers == 1 {
		shards, err = p.runSerial(ctx, src)
	} else {
		shards, err = p.runSharded(ctx, src)
	}

	res, mergeErr := p.collect(shards, time.Since(start))
	if mergeErr != nil {
		return nil, mergeErr
	}

	entry := p.log.WithFields(map[string]interface{}{
		"frames":    res.Stats.Read,
		"rejected":  res.Stats.Rejected,
		"filtered":  res.Stats.Filtered,
		"tcp_flows": res.Stats.TCPFlows,
		"udp_flows": res.Stats.UDPFlows,
		"udp_open":  res.Stats.UDPOpen,
		"duration":  res.Stats.Duration.String(),
	})
	if err != nil {
		entry.WithError(err).Warn("pipeline stopped early, returning partial result")
	} else {
		entry.Info("pipeline finished")
	}
	return res, err
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Read:     p.metrics.Read.Load(),
		Decoded:  p.metrics.Decoded.Load(),
		Rejected: p.metrics.Rejected.Load(),
		Filtered: p.metrics.Filtered.Load(),
		Workers:  p.workers,
	}
}

func (p *Pipeline) runSerial(ctx context.Context, src source.Source) ([]*shard, error) {
	sh := p.newShard(0)
	for {
		if err := ctx.Err(); err != nil {
			return []*shard{sh}, err
		}
		pkt, ok, err := p.next(src)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return []*shard{sh}, nil
			}
			return []*shard{sh}, err
		}
		if ok {
			sh.apply(&pkt)
		}
	}
}

func (p *Pipeline) runSharded(ctx context.Context, src source.Source) ([]*shard, error) {
	shards := make([]*shard, p.workers)
	inputs := make([]chan []core.DecodedPacket, p.workers)

	var wg conc.WaitGroup
	for i := range shards {
		sh := p.newShard(i)
		in := make(chan []core.DecodedPacket, 4)
		shards[i], inputs[i] = sh, in
		wg.Go(func() {
			for batch := range in {
				sh.consume(batch, len(shards))
			}
		})
	}

	broadcast := func(batch []core.DecodedPacket) {
		for _, in := range inputs {
			in <- batch
		}
	}

	var runErr error
	batch := make([]core.DecodedPacket, 0, p.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		pkt, ok, err := p.next(src)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				runErr = err
			}
			break
		}
		if !ok {
			continue
		}
		batch = append(batch, pkt)
		if len(batch) == p.batchSize {
			broadcast(batch)
			batch = make([]core.DecodedPacket, 0, p.batchSize)
		}
	}
	if len(batch) > 0 {
		broadcast(batch)
	}
	for _, in := range inputs {
		close(in)
	}
	wg.Wait()

	return shards, runErr
}

// next reads and decodes one record. ok is false for rejected frames.
func (p *Pipeline) next(src source.Source) (core.DecodedPacket, bool, error) {
	raw, err := src.Next()
	if err != nil {
		return core.DecodedPacket{}, false, err
	}
	p.metrics.Read.Add(1)
	if p.prom != nil {
		p.prom.FramesRead.Inc()
	}

	pkt, err := p.decoder.Decode(raw)
	if err != nil {
		p.reject(raw, err)
		return core.DecodedPacket{}, false, nil
	}
	p.metrics.Decoded.Add(1)
	return pkt, true, nil
}

func (p *Pipeline) reject(raw core.RawPacket, err error) {
	if errors.Is(err, core.ErrFiltered) {
		p.metrics.Filtered.Add(1)
		if p.prom != nil {
			p.prom.FramesFiltered.Inc()
		}
		return
	}

	p.metrics.Rejected.Add(1)
	if p.prom != nil {
		p.prom.FramesRejected.WithLabelValues(metrics.RejectReason(err)).Inc()
	}
	if p.log.IsDebugEnabled() {
		p.log.WithFields(map[string]interface{}{
			"frame": raw.Frame,
			"len":   raw.FrameLen(),
		}).WithError(err).Debug("frame rejected")
	}
}

// collect merges shard tables and fills run statistics.
func (p *Pipeline) collect(shards []*shard, elapsed time.Duration) (*Result, error) {
	res := &Result{TCP: flow.NewTable(), UDP: flow.NewTable(), Stats: p.Stats()}
	res.Stats.Duration = elapsed

	for _, sh := range shards {
		tcp, udp := sh.tracker(core.ProtocolTCP), sh.tracker(core.ProtocolUDP)
		if err := res.TCP.Merge(tcp.Table()); err != nil {
			return nil, fmt.Errorf("shard %d: %w", sh.id, err)
		}
		if err := res.UDP.Merge(udp.Table()); err != nil {
			return nil, fmt.Errorf("shard %d: %w", sh.id, err)
		}

		tc, uc := tcp.Counters(), udp.Counters()
		res.Stats.TCPPackets += tc.Updated
		res.Stats.Ignored += tc.Ignored
		res.Stats.TCPClosed += tc.Closed
		res.Stats.UDPPackets += uc.Updated
		res.Stats.UDPExpired += uc.Closed
		res.Stats.UDPOpen += sh.udp.Open()
	}
	res.Stats.TCPFlows = res.TCP.Len()
	res.Stats.UDPFlows = res.UDP.Len()

	if p.prom != nil {
		p.prom.FlowsCreated.WithLabelValues("tcp").Add(float64(res.Stats.TCPFlows))
		p.prom.FlowsCreated.WithLabelValues("udp").Add(float64(res.Stats.UDPFlows))
		p.prom.FlowsClosed.WithLabelValues("tcp", metrics.CloseFinRst).Add(float64(res.Stats.TCPClosed))
		p.prom.FlowsClosed.WithLabelValues("udp", metrics.CloseIdle).Add(float64(res.Stats.UDPExpired))
		p.prom.FlowTableSize.WithLabelValues("tcp").Set(float64(res.Stats.TCPFlows))
		p.prom.FlowTableSize.WithLabelValues("udp").Set(float64(res.Stats.UDPFlows))
		p.prom.RunDurationSeconds.Set(elapsed.Seconds())
	}
	return res, nil
}
