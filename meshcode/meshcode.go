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

// Package meshcode decodes Japanese standard grid square codes
// (JIS X 0410 "chiiki mesh" codes) into geographic coordinates.
package meshcode

import (
	"errors"
	"fmt"
)

// ErrInvalidCode is returned when a code cannot be decoded.
var ErrInvalidCode = errors.New("meshcode: invalid mesh code")

// Level is the subdivision level of a mesh code.
type Level int

// Supported mesh levels. The names give the approximate edge length
// of a grid square at that level.
const (
	Lv1 Level = iota + 1 // 80 km, 4 digits
	Lv2                  // 10 km, 6 digits
	Lv3                  // 1 km, 8 digits
	Lv4                  // 500 m, 9 digits
	Lv5                  // 250 m, 10 digits
	Lv6                  // 125 m, 11 digits
)

// Unit sizes of a first-level square, in degrees.
const (
	lv1Lat = 2.0 / 3.0
	lv1Lon = 1.0
)

func (l Level) String() string {
	switch l {
	case Lv1:
		return "80km"
	case Lv2:
		return "10km"
	case Lv3:
		return "1km"
	case Lv4:
		return "500m"
	case Lv5:
		return "250m"
	case Lv6:
		return "125m"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// LevelOf returns the level of code, determined by its length.
func LevelOf(code string) (Level, error) {
	switch len(code) {
	case 4:
		return Lv1, nil
	case 6:
		return Lv2, nil
	case 8:
		return Lv3, nil
	case 9:
		return Lv4, nil
	case 10:
		return Lv5, nil
	case 11:
		return Lv6, nil
	}
	return 0, fmt.Errorf("%w: %q has unsupported length %d", ErrInvalidCode, code, len(code))
}

// UnitSize returns the latitude and longitude extent in degrees of a
// grid square at level l.
func UnitSize(l Level) (dLat, dLon float64) {
	dLat, dLon = lv1Lat, lv1Lon
	if l >= Lv2 {
		dLat, dLon = dLat/8, dLon/8
	}
	if l >= Lv3 {
		dLat, dLon = dLat/10, dLon/10
	}
	for i := Lv4; i <= l; i++ {
		dLat, dLon = dLat/2, dLon/2
	}
	return dLat, dLon
}

// ToMeshPoint returns the latitude and longitude of the point located
// at the given fractions of the grid square identified by code, measured
// from its south-west corner. (0, 0) is the south-west corner and (1, 1)
// the north-east corner.
func ToMeshPoint(code string, latMultiplier, lonMultiplier float64) (lat, lon float64, err error) {
	level, err := LevelOf(code)
	if err != nil {
		return 0, 0, err
	}
	d := make([]int, len(code))
	for i, c := range code {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("%w: %q contains non-digit %q", ErrInvalidCode, code, c)
		}
		d[i] = int(c - '0')
	}

	// First level: two latitude and two longitude digits.
	lat = float64(d[0]*10+d[1]) * lv1Lat
	lon = float64(d[2]*10+d[3]) + 100
	dLat, dLon := lv1Lat, lv1Lon

	if level >= Lv2 {
		if d[4] > 7 || d[5] > 7 {
			return 0, 0, fmt.Errorf("%w: %q has second-level digits out of range", ErrInvalidCode, code)
		}
		dLat, dLon = dLat/8, dLon/8
		lat += float64(d[4]) * dLat
		lon += float64(d[5]) * dLon
	}
	if level >= Lv3 {
		dLat, dLon = dLat/10, dLon/10
		lat += float64(d[6]) * dLat
		lon += float64(d[7]) * dLon
	}
	// Quadrant subdivisions: 1=SW, 2=SE, 3=NW, 4=NE.
	for i := 8; i < len(d); i++ {
		q := d[i]
		if q < 1 || q > 4 {
			return 0, 0, fmt.Errorf("%w: %q has quadrant digit %d out of range", ErrInvalidCode, code, q)
		}
		dLat, dLon = dLat/2, dLon/2
		lat += float64((q-1)/2) * dLat
		lon += float64((q-1)%2) * dLon
	}

	return lat + latMultiplier*dLat, lon + lonMultiplier*dLon, nil
}
