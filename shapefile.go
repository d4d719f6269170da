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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// Shapefile field widths.
const (
	shpCityLength = 16
	shpPopLength  = 12
	shpFieldMax   = 10 // dBase field names are at most 10 characters.
)

// ShapefileWriter writes features as polygons in a shapefile, with one
// string field for the city id and one numeric field per bucket key.
//
// The underlying encoder does not report errors from writing attributes
// or closing its files, so completion is best-effort for this format:
// Close only checks that the .shp, .shx and .dbf files are still in
// place.
type ShapefileWriter struct {
	path   string
	keys   []string
	e      *shp.Encoder
	n      int
	closed bool
}

// CreateShapefile creates a shapefile at path for features carrying
// the given bucket keys.
func CreateShapefile(path string, keys []string) (*ShapefileWriter, error) {
	fields := []goshp.Field{goshp.StringField(CityProperty, shpCityLength)}
	for _, k := range keys {
		if len(k) > shpFieldMax {
			return nil, fmt.Errorf("meshpop: bucket key %q is too long for a shapefile field", k)
		}
		fields = append(fields, goshp.NumberField(k, shpPopLength))
	}
	e, err := shp.NewEncoderFromFields(path, goshp.POLYGON, fields...)
	if err != nil {
		return nil, &SinkWriteError{Path: path, Err: err}
	}
	return &ShapefileWriter{path: path, keys: keys, e: e}, nil
}

// Write implements FeatureWriter. The feature must carry the keys the
// writer was created with.
func (s *ShapefileWriter) Write(f *MeshFeature) error {
	if s.closed {
		return &SinkWriteError{Path: s.path, Err: ErrSinkClosed}
	}
	vals := make([]interface{}, 0, len(s.keys)+1)
	vals = append(vals, f.CityID)
	for _, k := range s.keys {
		v, ok := f.Populations[k]
		if !ok {
			return &IncompleteBucketCoverageError{CellID: f.CellID, Missing: []string{k}}
		}
		vals = append(vals, v)
	}
	if err := s.e.EncodeFields(f.Polygon, vals...); err != nil {
		return &SinkWriteError{Path: s.path, Err: err}
	}
	s.n++
	return nil
}

// Flush implements FeatureWriter. Records are written as they are
// encoded, so there is nothing to flush.
func (s *ShapefileWriter) Flush() error {
	if s.closed {
		return &SinkWriteError{Path: s.path, Err: ErrSinkClosed}
	}
	return nil
}

// Close implements FeatureWriter.
func (s *ShapefileWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.e.Close()
	base := strings.TrimSuffix(s.path, filepath.Ext(s.path))
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		if _, err := os.Stat(base + ext); err != nil {
			return &SinkWriteError{Path: s.path, Err: err}
		}
	}
	return nil
}

// Path implements FeatureWriter.
func (s *ShapefileWriter) Path() string { return s.path }

// Count implements FeatureWriter.
func (s *ShapefileWriter) Count() int { return s.n }
