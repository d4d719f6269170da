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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Mode selects how bucket keys are formed and how batches are made up.
type Mode int

const (
	// SinglePeriod processes each source file as its own batch, with the
	// nine "d<day>t<time>" buckets.
	SinglePeriod Mode = iota
	// MultiPeriod processes the whole corpus as one batch, with nine
	// buckets for every period.
	MultiPeriod
)

func (m Mode) String() string {
	if m == MultiPeriod {
		return "corpus"
	}
	return "single"
}

// ParseMode parses "single" or "corpus".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "":
		return SinglePeriod, nil
	case "corpus", "multi":
		return MultiPeriod, nil
	}
	return 0, fmt.Errorf("meshpop: mode must be 'single' or 'corpus', but is %q", s)
}

// RowErrorPolicy says what to do with a row whose population value is
// malformed.
type RowErrorPolicy int

const (
	// AbortOnRowError fails the batch.
	AbortOnRowError RowErrorPolicy = iota
	// SkipRowErrors drops the row and logs a warning.
	SkipRowErrors
)

// ParseRowErrorPolicy parses "abort" or "skip".
func ParseRowErrorPolicy(s string) (RowErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abort", "":
		return AbortOnRowError, nil
	case "skip":
		return SkipRowErrors, nil
	}
	return 0, fmt.Errorf("meshpop: row error policy must be 'abort' or 'skip', but is %q", s)
}

// Column names in the source extracts.
const (
	ColCell       = "mesh1kmid"
	ColCity       = "citycode"
	ColDayFlag    = "dayflag"
	ColTimeBucket = "timezone"
	ColPopulation = "population"
	ColYear       = "year"
	ColMonth      = "month"
)

// RawRecord is one population-count row.
type RawRecord struct {
	CellID     string
	CityID     string
	DayFlag    string
	TimeBucket string
	Population int
	Period     Period
	// Key is the bucket key the population belongs to.
	Key string
}

// columns holds the field index of each known column; -1 if absent.
type columns struct {
	cell, city, day, time, pop, year, month int
}

func newColumns(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1, -1, -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch h {
		case ColCell:
			c.cell = i
		case ColCity:
			c.city = i
		case ColDayFlag:
			c.day = i
		case ColTimeBucket:
			c.time = i
		case ColPopulation:
			c.pop = i
		case ColYear:
			c.year = i
		case ColMonth:
			c.month = i
		}
	}
	var missing []string
	required := []struct {
		name string
		idx  int
	}{{ColCell, c.cell}, {ColCity, c.city}, {ColDayFlag, c.day}, {ColTimeBucket, c.time}, {ColPopulation, c.pop}}
	for _, r := range required {
		if r.idx < 0 {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("meshpop: missing required columns %v", missing)
	}
	return c, nil
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// Normalizer turns source rows into RawRecords.
type Normalizer struct {
	Mode   Mode
	Policy RowErrorPolicy
	Log    logrus.FieldLogger
}

// normalize converts one row. fallback is the period used when the row
// has no year and month columns.
func (n *Normalizer) normalize(c columns, fields []string, fallback Period) (RawRecord, error) {
	r := RawRecord{
		CellID:     field(fields, c.cell),
		CityID:     field(fields, c.city),
		DayFlag:    field(fields, c.day),
		TimeBucket: field(fields, c.time),
	}
	popStr := field(fields, c.pop)
	pop, err := strconv.Atoi(popStr)
	if err != nil {
		return r, &MalformedPopulationError{Value: popStr, Err: err}
	}
	if pop < 0 {
		return r, &MalformedPopulationError{Value: popStr, Err: errors.New("negative population")}
	}
	r.Population = pop

	r.Period = fallback
	if c.year >= 0 && c.month >= 0 {
		if y, m := field(fields, c.year), field(fields, c.month); y != "" || m != "" {
			r.Period = NewPeriod(y, m)
		}
	}
	if n.Mode == MultiPeriod {
		if r.Period.IsZero() {
			return r, fmt.Errorf("meshpop: row for cell %s has no year and month", r.CellID)
		}
		r.Key = BucketKey(r.Period, r.DayFlag, r.TimeBucket)
	} else {
		r.Key = BucketKey(Period{}, r.DayFlag, r.TimeBucket)
	}
	return r, nil
}

// Read reads all records from the comma-delimited data in r, which must
// start with a header row. name identifies the data in error messages.
func (n *Normalizer) Read(r io.Reader, name string, fallback Period) ([]RawRecord, error) {
	log := n.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("meshpop: reading header of %s: %w", name, err)
	}
	cols, err := newColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%v in %s", err, name)
	}

	var recs []RawRecord
	line := 1
	skipped := 0
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("meshpop: reading %s: %w", name, err)
		}
		rec, err := n.normalize(cols, fields, fallback)
		if err != nil {
			var mp *MalformedPopulationError
			if errors.As(err, &mp) {
				mp.File, mp.Row = name, line
				if n.Policy == SkipRowErrors {
					log.WithField("source", name).Warn(mp.Error())
					skipped++
					continue
				}
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
	if skipped > 0 {
		log.WithFields(logrus.Fields{"source": name, "skipped": skipped}).Warn("skipped rows with malformed population")
	}
	return recs, nil
}

// ReadFile reads all records from the file at path.
func (n *Normalizer) ReadFile(path string, fallback Period) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meshpop: opening source: %w", err)
	}
	defer f.Close()
	return n.Read(f, path, fallback)
}
