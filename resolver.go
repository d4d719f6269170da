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
	"sync"
	"sync/atomic"

	"github.com/Kanahiro/mesh1km-pop/meshcode"
	"github.com/ctessum/geom"
	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"
)

// CornerFunc returns the latitude and longitude of the point at the given
// row (latitude) and column (longitude) fractions of a grid cell.
type CornerFunc func(cellID string, rowOffset, colOffset float64) (lat, lon float64, err error)

// MeshCorner is the default CornerFunc. It decodes JIS X 0410 mesh codes.
var MeshCorner CornerFunc = meshcode.ToMeshPoint

// cornerOffsets are the corner offsets visited when building a cell
// ring. The first corner is repeated to close the ring.
var cornerOffsets = [4][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

// A Resolver converts grid cell identifiers into polygons.
type Resolver interface {
	// Resolve returns the closed five-point ring of the cell, in
	// (longitude, latitude) order. The returned polygon may be shared
	// with other callers and must not be modified.
	Resolve(ctx context.Context, cellID string) (geom.Polygon, error)
}

// cellPolygon builds the polygon for cellID by looking up its four
// corners. It does no caching.
func cellPolygon(corner CornerFunc, cellID string) (geom.Polygon, error) {
	ring := make([]geom.Point, 0, len(cornerOffsets)+1)
	for _, o := range cornerOffsets {
		lat, lon, err := corner(cellID, o[0], o[1])
		if err != nil {
			return nil, &InvalidGridCellIDError{ID: cellID, Err: err}
		}
		ring = append(ring, geom.Point{X: lon, Y: lat})
	}
	ring = append(ring, ring[0])
	return geom.Polygon{ring}, nil
}

// countingCorner wraps a CornerFunc and counts its invocations.
type countingCorner struct {
	f     CornerFunc
	calls int64
}

func (c *countingCorner) corner(cellID string, row, col float64) (float64, float64, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.f(cellID, row, col)
}

// resolution is the cached outcome of resolving one cell. Failed
// resolutions are cached too: an id that fails to decode will keep
// failing.
type resolution struct {
	polygon geom.Polygon
	err     error
}

// SharedResolver is a Resolver that is safe for concurrent use. The
// cache is guarded by a mutex, and concurrent lookups of the same
// uncached cell are collapsed into one, so the corner lookups for a
// cell run at most once while it is cached.
type SharedResolver struct {
	corner *countingCorner

	mu    sync.Mutex
	cache *lru.Cache

	lookups singleflight.Group
}

// NewSharedResolver creates a concurrency-safe resolver, where corner is
// the corner lookup function (MeshCorner if nil) and cacheSize is the
// maximum number of cells held in the cache. A cacheSize of 0 means no
// limit.
func NewSharedResolver(corner CornerFunc, cacheSize int) *SharedResolver {
	if corner == nil {
		corner = MeshCorner
	}
	return &SharedResolver{
		corner: &countingCorner{f: corner},
		cache:  lru.New(cacheSize),
	}
}

// cached returns the cached resolution of cellID, if any.
func (r *SharedResolver) cached(cellID string) (*resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache.Get(cellID)
	if !ok {
		return nil, false
	}
	return v.(*resolution), true
}

// Resolve implements Resolver.
func (r *SharedResolver) Resolve(ctx context.Context, cellID string) (geom.Polygon, error) {
	if res, ok := r.cached(cellID); ok {
		return res.polygon, res.err
	}
	v, _, _ := r.lookups.Do(cellID, func() (interface{}, error) {
		// Another lookup may have finished since the check above.
		if res, ok := r.cached(cellID); ok {
			return res, nil
		}
		p, err := cellPolygon(r.corner.corner, cellID)
		res := &resolution{polygon: p, err: err}
		r.mu.Lock()
		r.cache.Add(cellID, res)
		r.mu.Unlock()
		return res, nil
	})
	res := v.(*resolution)
	return res.polygon, res.err
}

// CornerCalls returns the number of times the corner lookup function
// has been called.
func (r *SharedResolver) CornerCalls() int64 { return atomic.LoadInt64(&r.corner.calls) }

// LocalResolver is a Resolver backed by a least-recently-used cache. It
// is not safe for concurrent use; give each worker its own.
type LocalResolver struct {
	corner *countingCorner
	cache  *lru.Cache
}

// NewLocalResolver creates a resolver for use by a single goroutine.
// A cacheSize of 0 means no limit.
func NewLocalResolver(corner CornerFunc, cacheSize int) *LocalResolver {
	if corner == nil {
		corner = MeshCorner
	}
	return &LocalResolver{
		corner: &countingCorner{f: corner},
		cache:  lru.New(cacheSize),
	}
}

// Resolve implements Resolver.
func (r *LocalResolver) Resolve(ctx context.Context, cellID string) (geom.Polygon, error) {
	if v, ok := r.cache.Get(cellID); ok {
		res := v.(*resolution)
		return res.polygon, res.err
	}
	p, err := cellPolygon(r.corner.corner, cellID)
	r.cache.Add(cellID, &resolution{polygon: p, err: err})
	return p, err
}

// CornerCalls returns the number of times the corner lookup function
// has been called.
func (r *LocalResolver) CornerCalls() int64 { return atomic.LoadInt64(&r.corner.calls) }
