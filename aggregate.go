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
	"github.com/sirupsen/logrus"
)

// CellAggregate holds the aggregated populations of one grid cell.
type CellAggregate struct {
	CellID string
	CityID string
	// Buckets maps every expected bucket key to a population.
	Buckets map[string]int
}

// Aggregation is the result of aggregating one batch.
type Aggregation struct {
	Mode    Mode
	Periods []Period
	// Keys are the expected bucket keys, in output order.
	Keys []string
	// Cells are in the order their ids were first observed.
	Cells []*CellAggregate
	// Dropped is the number of (cell, bucket key) pairs whose key is not
	// one of Keys.
	Dropped int
	// CityConflicts is the number of records whose city id differs from
	// the first one observed for their cell.
	CityConflicts int
}

// Aggregator groups records by grid cell and folds their populations
// into buckets. Records are folded in the order they are added; when two
// records for the same cell share a bucket key, the last one wins.
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	mode    Mode
	periods []Period // configured periods; nil means observed.
	legacy  bool

	order    []string
	cells    map[string]*cellFold
	observed map[Period]bool

	cityConflicts int
}

type cellFold struct {
	cityID  string
	buckets map[string]int
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithPeriods fixes the set of periods in MultiPeriod mode instead of
// using the periods observed in the records. Records for other periods
// are dropped.
func WithPeriods(periods ...Period) AggregatorOption {
	return func(a *Aggregator) {
		if len(periods) > 0 {
			a.periods = SortPeriods(periods)
		}
	}
}

// WithLegacyD2T2 reproduces a defect of earlier releases in SinglePeriod
// mode: the d2t2 output bucket is filled from the d2t0 bucket.
func WithLegacyD2T2(legacy bool) AggregatorOption {
	return func(a *Aggregator) { a.legacy = legacy }
}

// NewAggregator creates an Aggregator for the given mode.
func NewAggregator(mode Mode, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		mode:     mode,
		cells:    make(map[string]*cellFold),
		observed: make(map[Period]bool),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Add folds records into the aggregation.
func (a *Aggregator) Add(records ...RawRecord) {
	for _, r := range records {
		c, ok := a.cells[r.CellID]
		if !ok {
			c = &cellFold{cityID: r.CityID, buckets: make(map[string]int)}
			a.cells[r.CellID] = c
			a.order = append(a.order, r.CellID)
		} else if c.cityID != r.CityID {
			a.cityConflicts++
		}
		c.buckets[r.Key] = r.Population
		if a.mode == MultiPeriod {
			a.observed[r.Period] = true
		}
	}
}

// Periods returns the periods whose buckets the result will contain.
func (a *Aggregator) Periods() []Period {
	if a.mode != MultiPeriod {
		return nil
	}
	if a.periods != nil {
		return a.periods
	}
	observed := make([]Period, 0, len(a.observed))
	for p := range a.observed {
		observed = append(observed, p)
	}
	return SortPeriods(observed)
}

// With the legacy d2t2 defect, legacyTarget is filled from legacySource.
const (
	legacyTarget = "d2t2"
	legacySource = "d2t0"
)

// Result returns the aggregation of all records added so far. Every
// cell carries exactly the expected bucket keys, zero-filled where no
// record contributed.
func (a *Aggregator) Result() (*Aggregation, error) {
	periods := a.Periods()
	keys := ExpectedKeys(periods)
	expected := make(map[string]bool, len(keys))
	for _, k := range keys {
		expected[k] = true
	}

	agg := &Aggregation{
		Mode:          a.mode,
		Periods:       periods,
		Keys:          keys,
		Cells:         make([]*CellAggregate, 0, len(a.order)),
		CityConflicts: a.cityConflicts,
	}
	for _, id := range a.order {
		c := a.cells[id]
		buckets := make(map[string]int, len(keys))
		for _, k := range keys {
			src := k
			if a.legacy && a.mode == SinglePeriod && k == legacyTarget {
				src = legacySource
			}
			buckets[k] = c.buckets[src]
		}
		for k := range c.buckets {
			if !expected[k] {
				agg.Dropped++
			}
		}
		if err := checkCoverage(id, keys, buckets); err != nil {
			return nil, err
		}
		agg.Cells = append(agg.Cells, &CellAggregate{CellID: id, CityID: c.cityID, Buckets: buckets})
	}
	return agg, nil
}

// checkCoverage returns an error if buckets does not hold exactly keys.
func checkCoverage(cellID string, keys []string, buckets map[string]int) error {
	var missing []string
	for _, k := range keys {
		if _, ok := buckets[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 || len(buckets) != len(keys) {
		return &IncompleteBucketCoverageError{CellID: cellID, Missing: missing}
	}
	return nil
}

// Log reports the aggregation summary.
func (agg *Aggregation) Log(log logrus.FieldLogger) {
	f := log.WithFields(logrus.Fields{"cells": len(agg.Cells), "buckets": len(agg.Keys)})
	if agg.Dropped > 0 {
		f.WithField("dropped", agg.Dropped).Warn("dropped buckets outside the expected key set")
	}
	if agg.CityConflicts > 0 {
		f.WithField("conflicts", agg.CityConflicts).Debug("kept first-observed city id for cells with conflicting city ids")
	}
	f.Info("aggregated")
}
