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

package meshcode

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func similar(a, b float64) bool { return math.Abs(a-b) < tolerance }

func TestToMeshPoint(t *testing.T) {
	tests := []struct {
		code             string
		latMul, lonMul   float64
		wantLat, wantLon float64
	}{
		{code: "5339", wantLat: 35.333333333333, wantLon: 139},
		{code: "5339", latMul: 1, lonMul: 1, wantLat: 36, wantLon: 140},
		{code: "533946", wantLat: 35.666666666667, wantLon: 139.75},
		{code: "53394611", wantLat: 35.675, wantLon: 139.7625},
		{code: "53394611", latMul: 0, lonMul: 1, wantLat: 35.675, wantLon: 139.775},
		{code: "53394611", latMul: 1, lonMul: 1, wantLat: 35.683333333333, wantLon: 139.775},
		{code: "53394611", latMul: 1, lonMul: 0, wantLat: 35.683333333333, wantLon: 139.7625},
		{code: "533946111", wantLat: 35.675, wantLon: 139.7625},
		{code: "533946114", wantLat: 35.679166666667, wantLon: 139.76875},
		{code: "5339461142", wantLat: 35.679166666667, wantLon: 139.771875},
		{code: "53394611423", wantLat: 35.680208333333, wantLon: 139.771875},
	}
	for _, test := range tests {
		lat, lon, err := ToMeshPoint(test.code, test.latMul, test.lonMul)
		if err != nil {
			t.Errorf("%s: %v", test.code, err)
			continue
		}
		if math.Abs(lat-test.wantLat) > 1e-9 || math.Abs(lon-test.wantLon) > 1e-9 {
			t.Errorf("%s (%g, %g): got (%.12f, %.12f), want (%.12f, %.12f)",
				test.code, test.latMul, test.lonMul, lat, lon, test.wantLat, test.wantLon)
		}
	}
}

func TestToMeshPointInvalid(t *testing.T) {
	for _, code := range []string{"", "533", "53394", "5339461a", "53398611", "533946115", "53394611-1", "5339461100"} {
		_, _, err := ToMeshPoint(code, 0, 0)
		if !errors.Is(err, ErrInvalidCode) {
			t.Errorf("%q: got error %v, want ErrInvalidCode", code, err)
		}
	}
}

func TestUnitSize(t *testing.T) {
	dLat, dLon := UnitSize(Lv3)
	if !similar(dLat, 30.0/3600) || !similar(dLon, 45.0/3600) {
		t.Errorf("Lv3 unit size = (%g, %g)", dLat, dLon)
	}
	dLat, dLon = UnitSize(Lv6)
	if !similar(dLat, 30.0/3600/8) || !similar(dLon, 45.0/3600/8) {
		t.Errorf("Lv6 unit size = (%g, %g)", dLat, dLon)
	}
}

func TestLevelOf(t *testing.T) {
	l, err := LevelOf("53394611")
	if err != nil {
		t.Fatal(err)
	}
	if l != Lv3 || l.String() != "1km" {
		t.Errorf("level = %v", l)
	}
}
