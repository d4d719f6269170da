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

	"github.com/ctessum/geom"
)

// CityProperty is the name of the property holding the city id.
const CityProperty = "citycode"

// MeshFeature is the output record for one grid cell.
type MeshFeature struct {
	CellID  string
	CityID  string
	Polygon geom.Polygon
	// Keys are the bucket keys in output order.
	Keys []string
	// Populations maps each of Keys to a population.
	Populations map[string]int
}

// Assembler joins cell geometries with aggregated populations.
type Assembler struct {
	Resolver Resolver
}

// Assemble creates the feature for one cell.
func (a *Assembler) Assemble(ctx context.Context, cellID, cityID string, keys []string, buckets map[string]int) (*MeshFeature, error) {
	p, err := a.Resolver.Resolve(ctx, cellID)
	if err != nil {
		return nil, err
	}
	return &MeshFeature{
		CellID:      cellID,
		CityID:      cityID,
		Polygon:     p,
		Keys:        keys,
		Populations: buckets,
	}, nil
}

// AssembleAll creates one feature per cell of agg, in cell order.
func (a *Assembler) AssembleAll(ctx context.Context, agg *Aggregation) ([]*MeshFeature, error) {
	o := make([]*MeshFeature, len(agg.Cells))
	for i, c := range agg.Cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := a.Assemble(ctx, c.CellID, c.CityID, agg.Keys, c.Buckets)
		if err != nil {
			return nil, err
		}
		o[i] = f
	}
	return o, nil
}
