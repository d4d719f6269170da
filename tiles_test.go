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
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestLayerName(t *testing.T) {
	for path, want := range map[string]string{
		"geojsonl/2020-01.geojsonl": "202001",
		"all.geojsonl":              "all",
		"out/my_sink.v2.geojsonl":   "mysink",
	} {
		if have := LayerName(path); have != want {
			t.Errorf("%s: have %q, want %q", path, have, want)
		}
	}
}

func TestTileCommand(t *testing.T) {
	cfg := TileConfig{Program: "tippecanoe", OutputDir: "meshes", MinZoom: 8, MaxZoom: 10}
	have := TileCommand(cfg, []string{"geojsonl/2020-01.geojsonl", "geojsonl/2020-02.geojsonl"})
	want := []string{"tippecanoe", "-e", "meshes", "-P", "-Z8", "-z10", "-pf", "-pk", "--force",
		"-L", "202001:geojsonl/2020-01.geojsonl", "-L", "202002:geojsonl/2020-02.geojsonl"}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestBuildTiles(t *testing.T) {
	echo, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo is not available")
	}
	dir := t.TempDir()
	complete := filepath.Join(dir, "2020-01.geojsonl")
	partial := filepath.Join(dir, "2020-02.geojsonl")
	for _, s := range []string{complete, partial} {
		if err := os.WriteFile(s, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := WriteManifest(&Manifest{Sink: complete}); err != nil {
		t.Fatal(err)
	}
	cfg := TileConfig{Program: echo, OutputDir: filepath.Join(dir, "tiles"), MinZoom: 8, MaxZoom: 8}

	t.Run("complete only", func(t *testing.T) {
		log, hook := test.NewNullLogger()
		if err := BuildTiles(context.Background(), cfg, []string{complete, partial}, log); err != nil {
			t.Fatal(err)
		}
		out := hook.LastEntry().Message
		if !strings.Contains(out, "202001:"+complete) || strings.Contains(out, "202002:") {
			t.Errorf("unexpected tile builder arguments: %s", out)
		}
	})
	t.Run("allow partial", func(t *testing.T) {
		log, hook := test.NewNullLogger()
		cfg := cfg
		cfg.AllowPartial = true
		if err := BuildTiles(context.Background(), cfg, []string{complete, partial}, log); err != nil {
			t.Fatal(err)
		}
		if out := hook.LastEntry().Message; !strings.Contains(out, "202002:"+partial) {
			t.Errorf("unexpected tile builder arguments: %s", out)
		}
	})
	t.Run("nothing complete", func(t *testing.T) {
		log, _ := test.NewNullLogger()
		if err := BuildTiles(context.Background(), cfg, []string{partial}, log); err == nil {
			t.Error("expected an error")
		}
	})
}
