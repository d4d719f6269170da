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
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// TileConfig configures the external tile builder.
type TileConfig struct {
	// Program is the tippecanoe executable.
	Program string
	// OutputDir is the directory the tiles are written to.
	OutputDir string
	MinZoom   int
	MaxZoom   int
	// AllowPartial passes sinks without a completion manifest to the
	// tile builder.
	AllowPartial bool
}

// LayerName derives a tile layer name from a sink path: the base name up
// to its first '.', with everything except letters and digits removed.
func LayerName(sink string) string {
	base := filepath.Base(sink)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, base)
}

// TileCommand returns the tile builder command line, program first,
// with one layer per sink.
func TileCommand(cfg TileConfig, sinks []string) []string {
	args := []string{cfg.Program, "-e", cfg.OutputDir, "-P",
		fmt.Sprintf("-Z%d", cfg.MinZoom), fmt.Sprintf("-z%d", cfg.MaxZoom),
		"-pf", "-pk", "--force"}
	for _, s := range sinks {
		args = append(args, "-L", LayerName(s)+":"+s)
	}
	return args
}

// BuildTiles runs the tile builder over the given GeoJSONL sinks.
// Sinks without a completion manifest are skipped unless
// cfg.AllowPartial is set.
func BuildTiles(ctx context.Context, cfg TileConfig, sinks []string, log logrus.FieldLogger) error {
	var use []string
	for _, s := range sinks {
		if !cfg.AllowPartial && !IsComplete(s) {
			log.WithField("sink", s).Warn("skipping sink without completion manifest")
			continue
		}
		use = append(use, s)
	}
	if len(use) == 0 {
		return fmt.Errorf("meshpop: no complete sinks to build tiles from")
	}

	argv := TileCommand(cfg, use)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	w := log.WithField("program", cfg.Program)
	out := logWriter{w}
	cmd.Stdout, cmd.Stderr = out, out
	w.WithField("layers", len(use)).Infof("running %s", strings.Join(cmd.Args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("meshpop: running %s: %w", cfg.Program, err)
	}
	return nil
}

// logWriter sends each write to a logger at info level.
type logWriter struct{ log logrus.FieldLogger }

func (l logWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimRight(string(p), "\r\n"); msg != "" {
		l.log.Info(msg)
	}
	return len(p), nil
}
