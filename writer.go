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
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// A FeatureWriter appends features to an output sink. A FeatureWriter
// starts open and is closed once with Close, after which Write fails.
// Writes may be buffered: a failure to write to the sink can surface at
// the next Flush or Close rather than at Write.
type FeatureWriter interface {
	Write(f *MeshFeature) error
	// Flush writes any buffered features to the sink.
	Flush() error
	Close() error
	// Path is the location of the sink.
	Path() string
	// Count is the number of features written so far.
	Count() int
}

// Output formats.
const (
	FormatGeoJSONL  = "geojsonl"
	FormatShapefile = "shp"
)

// CheckFormat returns an error if format is not a supported output
// format.
func CheckFormat(format string) error {
	if format != FormatGeoJSONL && format != FormatShapefile {
		return fmt.Errorf("meshpop: output format must be %q or %q, but is %q",
			FormatGeoJSONL, FormatShapefile, format)
	}
	return nil
}

// CreateWriter creates a sink of the given format at path. keys are the
// bucket keys of the features that will be written.
func CreateWriter(format, path string, keys []string) (FeatureWriter, error) {
	switch format {
	case FormatGeoJSONL:
		return CreateGeoJSONL(path)
	case FormatShapefile:
		return CreateShapefile(path, keys)
	}
	return nil, CheckFormat(format)
}

// GeoJSONLWriter writes one GeoJSON Feature per line.
type GeoJSONLWriter struct {
	path   string
	c      io.Closer
	w      *bufio.Writer
	n      int
	closed bool
}

// CreateGeoJSONL creates or truncates the file at path and returns a
// writer to it.
func CreateGeoJSONL(path string) (*GeoJSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &SinkWriteError{Path: path, Err: err}
	}
	return &GeoJSONLWriter{path: path, c: f, w: bufio.NewWriter(f)}, nil
}

// NewGeoJSONLWriter returns a writer to w. name identifies the sink in
// error messages.
func NewGeoJSONLWriter(w io.Writer, name string) *GeoJSONLWriter {
	g := &GeoJSONLWriter{path: name, w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		g.c = c
	}
	return g
}

// ToGeoJSON converts f to a GeoJSON feature. Properties are the city id
// and every bucket key.
func ToGeoJSON(f *MeshFeature) *geojson.Feature {
	poly := make(orb.Polygon, len(f.Polygon))
	for i, path := range f.Polygon {
		ring := make(orb.Ring, len(path))
		for j, p := range path {
			ring[j] = orb.Point{p.X, p.Y}
		}
		poly[i] = ring
	}
	gf := geojson.NewFeature(poly)
	gf.Properties[CityProperty] = f.CityID
	for _, k := range f.Keys {
		gf.Properties[k] = f.Populations[k]
	}
	return gf
}

// Write implements FeatureWriter.
func (g *GeoJSONLWriter) Write(f *MeshFeature) error {
	if g.closed {
		return &SinkWriteError{Path: g.path, Err: ErrSinkClosed}
	}
	b, err := ToGeoJSON(f).MarshalJSON()
	if err != nil {
		return fmt.Errorf("meshpop: encoding cell %s: %w", f.CellID, err)
	}
	if _, err := g.w.Write(append(b, '\n')); err != nil {
		return &SinkWriteError{Path: g.path, Err: err}
	}
	g.n++
	return nil
}

// Flush implements FeatureWriter.
func (g *GeoJSONLWriter) Flush() error {
	if g.closed {
		return &SinkWriteError{Path: g.path, Err: ErrSinkClosed}
	}
	if err := g.w.Flush(); err != nil {
		return &SinkWriteError{Path: g.path, Err: err}
	}
	return nil
}

// Close flushes and closes the sink. Closing a closed writer does
// nothing.
func (g *GeoJSONLWriter) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.w.Flush(); err != nil {
		if g.c != nil {
			g.c.Close()
		}
		return &SinkWriteError{Path: g.path, Err: err}
	}
	if g.c != nil {
		if err := g.c.Close(); err != nil {
			return &SinkWriteError{Path: g.path, Err: err}
		}
	}
	return nil
}

// Path implements FeatureWriter.
func (g *GeoJSONLWriter) Path() string { return g.path }

// Count implements FeatureWriter.
func (g *GeoJSONLWriter) Count() int { return g.n }
