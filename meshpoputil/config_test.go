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

package meshpoputil

import (
	"os"
	"reflect"
	"testing"

	meshpop "github.com/Kanahiro/mesh1km-pop"
	"github.com/lnashier/viper"
)

func testConfig(kv ...interface{}) *viper.Viper {
	cfg := viper.New()
	cfg.Set("mode", "single")
	cfg.Set("row-errors", "abort")
	cfg.Set("output-format", meshpop.FormatGeoJSONL)
	for i := 0; i < len(kv); i += 2 {
		cfg.Set(kv[i].(string), kv[i+1])
	}
	return cfg
}

func TestPipelineConfig(t *testing.T) {
	os.Setenv("MESHPOP_TEST_OUT", "/tmp/meshpop")
	defer os.Unsetenv("MESHPOP_TEST_OUT")
	c, err := pipelineConfig(testConfig(
		"mode", "corpus",
		"row-errors", "skip",
		"output-dir", "${MESHPOP_TEST_OUT}/geojsonl",
		"periods", "202001, 2020-02",
		"workers", 3,
		"shared-resolver", true,
	))
	if err != nil {
		t.Fatal(err)
	}
	want := meshpop.Config{
		Mode:           meshpop.MultiPeriod,
		Format:         meshpop.FormatGeoJSONL,
		OutputDir:      "/tmp/meshpop/geojsonl",
		RowErrors:      meshpop.SkipRowErrors,
		Workers:        3,
		SharedResolver: true,
		Periods:        []meshpop.Period{meshpop.NewPeriod("2020", "01"), meshpop.NewPeriod("2020", "02")},
	}
	if !reflect.DeepEqual(c, want) {
		t.Errorf("have %+v, want %+v", c, want)
	}
}

func TestPipelineConfigErrors(t *testing.T) {
	for name, cfg := range map[string]*viper.Viper{
		"mode":           testConfig("mode", "weekly"),
		"row-errors":     testConfig("row-errors", "ignore"),
		"format":         testConfig("output-format", "kml"),
		"bad period":     testConfig("mode", "corpus", "periods", []string{"2020"}),
		"single periods": testConfig("periods", []string{"202001"}),
		"workers":        testConfig("workers", -1),
		"cache size":     testConfig("resolver-cache-size", -2),
	} {
		if _, err := pipelineConfig(cfg); err == nil {
			t.Errorf("%s: should fail", name)
		}
	}
}

func TestToStringSliceE(t *testing.T) {
	for _, test := range []struct {
		in   interface{}
		want []string
	}{
		{in: "a,b", want: []string{"a", "b"}},
		{in: []string{"a", "b, c"}, want: []string{"a", "b", "c"}},
		{in: "", want: nil},
	} {
		have, err := toStringSliceE(test.in)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(have, test.want) {
			t.Errorf("%v: have %v, want %v", test.in, have, test.want)
		}
	}
}

func TestTileConfig(t *testing.T) {
	cfg := viper.New()
	cfg.Set("tippecanoe", "tc")
	cfg.Set("tile-dir", "meshes")
	cfg.Set("min-zoom", 4)
	cfg.Set("max-zoom", 10)
	want := meshpop.TileConfig{Program: "tc", OutputDir: "meshes", MinZoom: 4, MaxZoom: 10}
	if have := tileConfig(cfg); have != want {
		t.Errorf("have %+v, want %+v", have, want)
	}
}
