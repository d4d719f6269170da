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

// Package meshpop converts population counts keyed by JIS X 0410 mesh
// code, day flag, and time of day into polygon features with one
// population attribute per time bucket.
//
// Records are read by a Normalizer, grouped by cell and pivoted into
// buckets by an Aggregator, joined with the cell polygons from a
// Resolver by an Assembler, and written by a FeatureWriter. A Pipeline
// drives these stages over a set of source files.
package meshpop

// Version is the version of this module.
const Version = "0.1.0"
