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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus/hooks/test"
)

// readFeatures reads the features of a GeoJSONL sink.
func readFeatures(t *testing.T, path string) []*geojson.Feature {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var o []*geojson.Feature
	s := bufio.NewScanner(f)
	for s.Scan() {
		gf, err := geojson.UnmarshalFeature(s.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		o = append(o, gf)
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	return o
}

func testSources(t *testing.T) []SourceFile {
	t.Helper()
	srcs, err := DiscoverSources(filepath.Join("testdata", "csv"))
	if err != nil {
		t.Fatal(err)
	}
	return srcs
}

func TestPipelineSinglePeriod(t *testing.T) {
	for _, shared := range []bool{false, true} {
		dir := t.TempDir()
		log, _ := test.NewNullLogger()
		p, err := New(Config{OutputDir: dir, Workers: 2, SharedResolver: shared}, log)
		if err != nil {
			t.Fatal(err)
		}
		report, err := p.Run(context.Background(), testSources(t))
		if err != nil {
			t.Fatal(err)
		}
		jan, feb := filepath.Join(dir, "2020-01.geojsonl"), filepath.Join(dir, "2020-02.geojsonl")
		want := []SinkResult{
			{Path: jan, Layer: "202001", Features: 3, Complete: true},
			{Path: feb, Layer: "202002", Features: 1, Complete: true},
		}
		if !reflect.DeepEqual(report.Sinks, want) {
			t.Errorf("shared=%v: have %+v, want %+v", shared, report.Sinks, want)
		}

		features := readFeatures(t, jan)
		var cities []string
		for _, f := range features {
			cities = append(cities, f.Properties.MustString(CityProperty))
			if len(f.Properties) != 10 {
				t.Errorf("feature has %d properties, want 10", len(f.Properties))
			}
			ring := f.Geometry.(orb.Polygon)[0]
			if len(ring) != 5 || ring[0] != ring[4] {
				t.Errorf("ring is not a closed five-point ring: %v", ring)
			}
		}
		if want := []string{"13101", "13102", "14101"}; !reflect.DeepEqual(cities, want) {
			t.Errorf("features are not in source order: %v", cities)
		}
		if v := features[0].Properties.MustInt("d0t1"); v != 7 {
			t.Errorf("d0t1 = %d, want 7", v)
		}

		m, err := ReadManifest(jan)
		if err != nil {
			t.Fatal(err)
		}
		if m.RunID != report.RunID || m.Features != 3 || len(m.Sources) != 2 || len(m.Keys) != 9 {
			t.Errorf("manifest: %+v", m)
		}
	}
}

func TestPipelineCorpus(t *testing.T) {
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	p, err := New(Config{Mode: MultiPeriod, OutputDir: dir, CorpusName: "kanto"}, log)
	if err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(context.Background(), testSources(t))
	if err != nil {
		t.Fatal(err)
	}
	sink := filepath.Join(dir, "kanto.geojsonl")
	if len(report.Sinks) != 1 || report.Sinks[0].Path != sink || !report.Sinks[0].Complete {
		t.Fatalf("sinks: %+v", report.Sinks)
	}
	features := readFeatures(t, sink)
	if len(features) != 3 {
		t.Fatalf("have %d features, want 3", len(features))
	}
	props := features[0].Properties
	if len(props) != 19 {
		t.Errorf("feature has %d properties, want 19", len(props))
	}
	for k, want := range map[string]int{"202001d0t0": 5, "202001d0t1": 7, "202002d0t0": 6, "202002d2t0": 40, "202002d2t2": 0} {
		if v := props.MustInt(k); v != want {
			t.Errorf("%s = %d, want %d", k, v, want)
		}
	}
}

func writeCSV(t *testing.T, root, dir, body string) {
	t.Helper()
	path := filepath.Join(root, dir, "pop.csv")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	data := "prefcode,citycode,mesh1kmid,dayflag,timezone,population\n" + body
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPipelineFailure(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	writeCSV(t, root, "13-2020-01", "13,13101,53394611,0,0,5\n")
	writeCSV(t, root, "13-2020-02", "13,13101,53399611,0,0,5\n")
	srcs, err := DiscoverSources(root)
	if err != nil {
		t.Fatal(err)
	}

	// A manifest left over from an earlier run must not survive a failure.
	feb := filepath.Join(out, "2020-02.geojsonl")
	if err := WriteManifest(&Manifest{Sink: feb}); err != nil {
		t.Fatal(err)
	}

	log, _ := test.NewNullLogger()
	p, err := New(Config{OutputDir: out, Workers: 1}, log)
	if err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(context.Background(), srcs)
	if !errors.Is(err, ErrInvalidGridCellID) {
		t.Fatalf("have error %v, want ErrInvalidGridCellID", err)
	}
	for _, s := range report.Sinks {
		if s.Complete {
			t.Errorf("sink %s should not be complete", s.Path)
		}
	}
	for _, s := range []string{filepath.Join(out, "2020-01.geojsonl"), feb} {
		if IsComplete(s) {
			t.Errorf("sink %s has a completion manifest", s)
		}
	}
}

func TestPipelineMalformedRows(t *testing.T) {
	root := t.TempDir()
	writeCSV(t, root, "13-2020-01", "13,13101,53394611,0,0,five\n13,13101,53394611,0,1,3\n")
	srcs, err := DiscoverSources(root)
	if err != nil {
		t.Fatal(err)
	}
	log, _ := test.NewNullLogger()

	p, err := New(Config{OutputDir: t.TempDir()}, log)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), srcs); !errors.Is(err, ErrMalformedPopulation) {
		t.Errorf("abort: have error %v, want ErrMalformedPopulation", err)
	}

	p, err = New(Config{OutputDir: t.TempDir(), RowErrors: SkipRowErrors}, log)
	if err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	if report.Sinks[0].Features != 1 {
		t.Errorf("have %d features, want 1", report.Sinks[0].Features)
	}
}

func TestPipelineNoSources(t *testing.T) {
	p, err := New(Config{OutputDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), nil); err == nil {
		t.Error("expected an error")
	}
	if _, err := New(Config{Format: "kml"}, nil); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestPipelineSharedResolverMatchesLocal(t *testing.T) {
	root := t.TempDir()
	// Many sources that repeat the same cells, so workers resolve the
	// same uncached ids at the same time.
	for i := 0; i < 24; i++ {
		var body strings.Builder
		for _, cell := range []string{"53394611", "53394612", "53394621", "53392500"} {
			fmt.Fprintf(&body, "13,13101,%s,%d,%d,%d\n", cell, i%3, (i/3)%3, i)
		}
		writeCSV(t, root, fmt.Sprintf("%02d-2020-%02d", i/12+13, i%12+1), body.String())
	}
	srcs, err := DiscoverSources(root)
	if err != nil {
		t.Fatal(err)
	}
	log, _ := test.NewNullLogger()
	outputs := make(map[bool]map[string][]byte)
	for _, shared := range []bool{false, true} {
		dir := t.TempDir()
		p, err := New(Config{OutputDir: dir, Workers: 4, SharedResolver: shared}, log)
		if err != nil {
			t.Fatal(err)
		}
		report, err := p.Run(context.Background(), srcs)
		if err != nil {
			t.Fatalf("shared=%v: %v", shared, err)
		}
		outputs[shared] = make(map[string][]byte)
		for _, s := range report.Sinks {
			b, err := os.ReadFile(s.Path)
			if err != nil {
				t.Fatal(err)
			}
			outputs[shared][filepath.Base(s.Path)] = b
		}
	}
	if len(outputs[true]) != 12 {
		t.Errorf("have %d sinks, want 12", len(outputs[true]))
	}
	if !reflect.DeepEqual(outputs[false], outputs[true]) {
		t.Error("shared and per-worker resolvers produced different output")
	}
}

func TestPipelineResources(t *testing.T) {
	p, err := New(Config{OutputDir: t.TempDir(), Workers: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.checkpoints != nil {
		t.Error("no checkpoint cache should be started without a checkpoint directory")
	}
	// All batches share one budget of Workers concurrent reads.
	if !p.readers.TryAcquire(2) {
		t.Fatal("reader budget should allow 2 reads")
	}
	if p.readers.TryAcquire(1) {
		t.Error("reader budget should not allow a third read")
	}
	p.readers.Release(2)
}
