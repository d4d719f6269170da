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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes of a batch. The concrete
// error types below unwrap to these, so callers can test with errors.Is.
var (
	ErrInvalidGridCellID        = errors.New("invalid grid cell id")
	ErrMalformedPopulation      = errors.New("malformed population value")
	ErrIncompleteBucketCoverage = errors.New("incomplete bucket coverage")
	ErrSinkWrite                = errors.New("sink write failure")
)

// ErrSinkClosed is returned when writing to a sink that has already
// been closed.
var ErrSinkClosed = errors.New("meshpop: sink is closed")

// InvalidGridCellIDError is returned when a grid cell identifier cannot
// be resolved to a geometry.
type InvalidGridCellIDError struct {
	ID  string
	Err error
}

func (e *InvalidGridCellIDError) Error() string {
	return fmt.Sprintf("meshpop: invalid grid cell id %q: %v", e.ID, e.Err)
}

func (e *InvalidGridCellIDError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidGridCellID.
func (e *InvalidGridCellIDError) Is(target error) bool { return target == ErrInvalidGridCellID }

// MalformedPopulationError is returned when the population field of a
// row is missing, non-numeric or negative.
type MalformedPopulationError struct {
	File  string
	Row   int // 1-based line number, counting the header.
	Value string
	Err   error
}

func (e *MalformedPopulationError) Error() string {
	msg := fmt.Sprintf("meshpop: %s line %d: malformed population value %q", e.File, e.Row, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPopulationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedPopulation.
func (e *MalformedPopulationError) Is(target error) bool { return target == ErrMalformedPopulation }

// IncompleteBucketCoverageError indicates that aggregation produced a
// bucket mapping missing some of the expected keys.
type IncompleteBucketCoverageError struct {
	CellID  string
	Missing []string
}

func (e *IncompleteBucketCoverageError) Error() string {
	return fmt.Sprintf("meshpop: cell %s is missing buckets [%s]", e.CellID, strings.Join(e.Missing, " "))
}

// Is reports whether target is ErrIncompleteBucketCoverage.
func (e *IncompleteBucketCoverageError) Is(target error) bool {
	return target == ErrIncompleteBucketCoverage
}

// SinkWriteError is returned when an output sink cannot be written.
type SinkWriteError struct {
	Path string
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("meshpop: writing %s: %v", e.Path, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSinkWrite.
func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }
