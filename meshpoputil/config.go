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

// Package meshpoputil holds the meshpop command-line interface.
package meshpoputil

import (
	"fmt"
	"os"
	"strings"

	meshpop "github.com/Kanahiro/mesh1km-pop"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// toStringSliceE returns a list option as a slice, accounting for the
// fact that it may be a single comma-separated string if it was set
// from an environment variable.
func toStringSliceE(i interface{}) ([]string, error) {
	s, err := cast.ToStringSliceE(i)
	if err != nil {
		return nil, err
	}
	var o []string
	for _, v := range s {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				o = append(o, f)
			}
		}
	}
	return o, nil
}

// extractConfig unmarshals the archive extraction configuration.
func extractConfig(cfg *viper.Viper) meshpop.ExtractConfig {
	return meshpop.ExtractConfig{
		ZipDir:      os.ExpandEnv(cfg.GetString("zip-dir")),
		ChildZipDir: os.ExpandEnv(cfg.GetString("child-zip-dir")),
		CSVDir:      os.ExpandEnv(cfg.GetString("csv-dir")),
	}
}

// pipelineConfig unmarshals the conversion configuration.
func pipelineConfig(cfg *viper.Viper) (meshpop.Config, error) {
	var c meshpop.Config
	mode, err := meshpop.ParseMode(cfg.GetString("mode"))
	if err != nil {
		return c, err
	}
	policy, err := meshpop.ParseRowErrorPolicy(cfg.GetString("row-errors"))
	if err != nil {
		return c, err
	}
	format := strings.ToLower(cfg.GetString("output-format"))
	if err := meshpop.CheckFormat(format); err != nil {
		return c, err
	}
	ps, err := toStringSliceE(cfg.Get("periods"))
	if err != nil {
		return c, fmt.Errorf("meshpop: reading 'periods': %v", err)
	}
	var periods []meshpop.Period
	for _, s := range expandStringSlice(ps) {
		p, err := meshpop.ParsePeriod(s)
		if err != nil {
			return c, err
		}
		periods = append(periods, p)
	}
	if len(periods) > 0 && mode != meshpop.MultiPeriod {
		return c, fmt.Errorf("meshpop: 'periods' can only be used in corpus mode")
	}
	workers := cfg.GetInt("workers")
	if workers < 0 {
		return c, fmt.Errorf("meshpop: workers=%d but should be >=0", workers)
	}
	cacheSize := cfg.GetInt("resolver-cache-size")
	if cacheSize < 0 {
		return c, fmt.Errorf("meshpop: resolver-cache-size=%d but should be >=0", cacheSize)
	}

	return meshpop.Config{
		Mode:               mode,
		Format:             format,
		OutputDir:          os.ExpandEnv(cfg.GetString("output-dir")),
		CorpusName:         os.ExpandEnv(cfg.GetString("corpus-name")),
		LegacyD2T2:         cfg.GetBool("legacy-d2t2"),
		RowErrors:          policy,
		Workers:            workers,
		ResolverCacheSize:  cacheSize,
		SharedResolver:     cfg.GetBool("shared-resolver"),
		Periods:            periods,
		CheckpointDir:      os.ExpandEnv(cfg.GetString("checkpoint-dir")),
		RefreshCheckpoints: cfg.GetBool("refresh-checkpoints"),
	}, nil
}

// tileConfig unmarshals the tile builder configuration.
func tileConfig(cfg *viper.Viper) meshpop.TileConfig {
	return meshpop.TileConfig{
		Program:      os.ExpandEnv(cfg.GetString("tippecanoe")),
		OutputDir:    os.ExpandEnv(cfg.GetString("tile-dir")),
		MinZoom:      cfg.GetInt("min-zoom"),
		MaxZoom:      cfg.GetInt("max-zoom"),
		AllowPartial: cfg.GetBool("allow-partial"),
	}
}
