/*
Copyright © 2024 the mesh1km-pop authors.
This file is part of mesh1km-pop.

mesh1km-pop is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mesh1km-pop is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mesh1km-pop.  If not, see <http://www.gnu.org/licenses/>.
*/

package meshpop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Kanahiro/mesh1km-pop/internal/hash"
	"github.com/ctessum/requestcache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultCorpusName is the base name of the corpus-mode sink.
const DefaultCorpusName = "all"

// Config configures a Pipeline.
type Config struct {
	Mode Mode
	// Format is the output format, FormatGeoJSONL or FormatShapefile.
	Format    string
	OutputDir string
	// CorpusName is the base name of the sink in MultiPeriod mode.
	CorpusName string
	LegacyD2T2 bool
	RowErrors  RowErrorPolicy

	// Workers is the number of source files processed at once.
	// Zero means the number of CPUs.
	Workers int
	// ResolverCacheSize is the number of cell polygons each resolver
	// holds. Zero means no limit.
	ResolverCacheSize int
	// SharedResolver makes all workers share one resolver rather than
	// each worker having its own.
	SharedResolver bool

	// Periods fixes the periods of a MultiPeriod batch. If empty, the
	// periods found in the records are used.
	Periods []Period

	// CheckpointDir is where aggregation results are cached. Empty
	// disables checkpoints.
	CheckpointDir string
	// RefreshCheckpoints discards existing checkpoints of the batches
	// being run.
	RefreshCheckpoints bool

	// Corner looks up cell corners. MeshCorner is used if nil.
	Corner CornerFunc
}

// SinkResult describes one sink written by a run.
type SinkResult struct {
	Path     string
	Layer    string
	Features int
	// Complete is true when the sink was closed cleanly and its
	// completion manifest written.
	Complete bool
}

// Report summarizes a run.
type Report struct {
	RunID string
	Mode  Mode
	Sinks []SinkResult
	// Dropped and CityConflicts are summed over all batches.
	Dropped       int
	CityConflicts int
}

// Pipeline converts population extracts into polygon features.
type Pipeline struct {
	cfg         Config
	log         logrus.FieldLogger
	checkpoints *requestcache.Cache
	shared      *SharedResolver
	locals      chan *LocalResolver
	// readers bounds the number of source files read at once across
	// all batches.
	readers *semaphore.Weighted
}

// New creates a pipeline from cfg. When cfg.CheckpointDir is set, the
// checkpoint cache keeps Workers goroutines for the life of the process,
// so a process should create one Pipeline and reuse it.
func New(cfg Config, log logrus.FieldLogger) (*Pipeline, error) {
	if cfg.Format == "" {
		cfg.Format = FormatGeoJSONL
	}
	if err := CheckFormat(cfg.Format); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CorpusName == "" {
		cfg.CorpusName = DefaultCorpusName
	}
	if cfg.Corner == nil {
		cfg.Corner = MeshCorner
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pipeline{cfg: cfg, log: log, readers: semaphore.NewWeighted(int64(cfg.Workers))}
	c, err := loadCheckpointCache(p.readBatch, cfg.Workers, cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}
	p.checkpoints = c
	if cfg.SharedResolver {
		p.shared = NewSharedResolver(cfg.Corner, cfg.ResolverCacheSize)
	} else {
		p.locals = make(chan *LocalResolver, cfg.Workers)
		for i := 0; i < cfg.Workers; i++ {
			p.locals <- NewLocalResolver(cfg.Corner, cfg.ResolverCacheSize)
		}
	}
	return p, nil
}

// withResolver calls f with a resolver that only the caller is using
// for the duration of the call, or with the shared resolver.
func (p *Pipeline) withResolver(ctx context.Context, f func(Resolver) error) error {
	if p.shared != nil {
		return f(p.shared)
	}
	var r *LocalResolver
	select {
	case r = <-p.locals:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { p.locals <- r }()
	return f(r)
}

// readBatch reads and aggregates the sources of one batch. Files are
// read concurrently, within the pipeline's reader budget, and folded in
// the order given.
func (p *Pipeline) readBatch(ctx context.Context, request interface{}) (interface{}, error) {
	srcs := request.([]SourceFile)
	n := &Normalizer{Mode: p.cfg.Mode, Policy: p.cfg.RowErrors, Log: p.log}
	recs := make([][]RawRecord, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range srcs {
		i, s := i, s
		g.Go(func() error {
			if err := p.readers.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.readers.Release(1)
			r, err := n.ReadFile(s.Path, s.Period)
			if err != nil {
				return err
			}
			recs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := NewAggregator(p.cfg.Mode, WithLegacyD2T2(p.cfg.LegacyD2T2), WithPeriods(p.cfg.Periods...))
	for _, r := range recs {
		a.Add(r...)
	}
	return a.Result()
}

// batch is one unit of output: the features of a set of sources, all
// destined for one sink.
type batch struct {
	sink     string
	sources  []SourceFile
	key      string
	agg      *Aggregation
	features []*MeshFeature
}

// process aggregates b and assembles its features.
func (p *Pipeline) process(ctx context.Context, b *batch) error {
	agg, key, err := p.aggregate(ctx, b.sources)
	if err != nil {
		return err
	}
	b.agg, b.key = agg, key
	agg.Log(p.log.WithField("sink", b.sink))
	return p.withResolver(ctx, func(r Resolver) error {
		a := &Assembler{Resolver: r}
		b.features, err = a.AssembleAll(ctx, agg)
		return err
	})
}

// sinkPath returns the path of the sink named name.
func (p *Pipeline) sinkPath(name string) string {
	return filepath.Join(p.cfg.OutputDir, name+"."+p.cfg.Format)
}

// batches splits sources into the batches of the configured mode.
func (p *Pipeline) batches(sources []SourceFile) []*batch {
	if p.cfg.Mode == MultiPeriod {
		return []*batch{{sink: p.sinkPath(p.cfg.CorpusName), sources: sources}}
	}
	o := make([]*batch, len(sources))
	for i, s := range sources {
		o[i] = &batch{sink: p.sinkPath(s.Label()), sources: []SourceFile{s}}
	}
	return o
}

// sink is an output sink and the batches written to it.
type sink struct {
	w       FeatureWriter
	keys    []string
	sources []string
	inputs  []string
}

// Run converts sources and writes the features to the sinks of the
// configured mode. Batches are processed concurrently but written in
// source order. Each sink that is closed cleanly after a successful run
// gets a completion manifest; after a failure, partial output is left in
// place without one.
func (p *Pipeline) Run(ctx context.Context, sources []SourceFile) (*Report, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("meshpop: no sources")
	}
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("meshpop: creating output directory: %w", err)
	}
	report := &Report{RunID: uuid.New().String(), Mode: p.cfg.Mode}
	log := p.log.WithFields(logrus.Fields{"run": report.RunID, "mode": p.cfg.Mode})
	log.WithField("sources", len(sources)).Info("starting run")

	batches := p.batches(sources)
	for _, b := range batches {
		if err := removeManifest(b.sink); err != nil {
			return nil, err
		}
	}

	done := make([]chan *batch, len(batches))
	for i := range done {
		done[i] = make(chan *batch, 1)
	}
	sinks := make(map[string]*sink)
	var order []string

	g, gctx := errgroup.WithContext(ctx)
	// One extra slot for the writer.
	g.SetLimit(p.cfg.Workers + 1)
	g.Go(func() error {
		for _, c := range done {
			var b *batch
			select {
			case b = <-c:
			case <-gctx.Done():
				return gctx.Err()
			}
			s, ok := sinks[b.sink]
			if !ok {
				w, err := CreateWriter(p.cfg.Format, b.sink, b.agg.Keys)
				if err != nil {
					return err
				}
				s = &sink{w: w, keys: b.agg.Keys}
				sinks[b.sink] = s
				order = append(order, b.sink)
			}
			for _, f := range b.features {
				if err := s.w.Write(f); err != nil {
					return err
				}
			}
			if err := s.w.Flush(); err != nil {
				return err
			}
			for _, src := range b.sources {
				s.sources = append(s.sources, src.Path)
			}
			s.inputs = append(s.inputs, b.key)
			report.Dropped += b.agg.Dropped
			report.CityConflicts += b.agg.CityConflicts
			log.WithFields(logrus.Fields{"sink": b.sink, "features": len(b.features)}).Debug("wrote batch")
		}
		return nil
	})
	for i, b := range batches {
		if gctx.Err() != nil {
			break
		}
		i, b := i, b
		g.Go(func() error {
			if err := p.process(gctx, b); err != nil {
				return err
			}
			done[i] <- b
			return nil
		})
	}
	runErr := g.Wait()

	for _, path := range order {
		s := sinks[path]
		r := SinkResult{Path: path, Layer: LayerName(path), Features: s.w.Count()}
		err := s.w.Close()
		if err == nil && runErr == nil {
			err = WriteManifest(&Manifest{
				RunID:     report.RunID,
				Sink:      path,
				Layer:     r.Layer,
				Mode:      p.cfg.Mode.String(),
				Features:  r.Features,
				Keys:      s.keys,
				Sources:   s.sources,
				InputHash: hash.Hash(s.inputs),
				Finished:  time.Now().UTC(),
			})
			r.Complete = err == nil
		}
		if err != nil && runErr == nil {
			runErr = err
		}
		report.Sinks = append(report.Sinks, r)
	}
	if runErr != nil {
		log.WithError(runErr).Error("run failed; partial output left in place")
		return report, runErr
	}
	log.WithField("sinks", len(report.Sinks)).Info("run complete")
	return report, nil
}
