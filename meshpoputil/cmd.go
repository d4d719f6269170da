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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	meshpop "github.com/Kanahiro/mesh1km-pop"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log is the logger used by all commands.
var Log = logrus.New()

// logFile is the log file opened for the running command, if any.
var logFile io.Closer

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to meshpop.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log-level",
			usage: `
              log-level is the minimum level of log messages to print:
              debug, info, warn, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log-file",
			usage: `
              log-file specifies a file that log messages are written to
              in addition to the terminal.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "zip-dir",
			usage: `
              zip-dir is the directory holding the distribution archives.`,
			defaultVal: "zip",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "child-zip-dir",
			usage: `
              child-zip-dir is the directory the distribution archives
              are unpacked into. It receives one archive per prefecture
              and month.`,
			defaultVal: "child_zip",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "csv-dir",
			usage: `
              csv-dir is the directory holding the population extracts,
              in one <prefcode>-<year>-<month> directory per prefecture
              and month.`,
			defaultVal: "csv",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), convertCmd.Flags()},
		},
		{
			name: "output-dir",
			usage: `
              output-dir is the directory features are written to.`,
			shorthand:  "o",
			defaultVal: "geojsonl",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), tilesCmd.Flags()},
		},
		{
			name: "mode",
			usage: `
              mode is 'single' to write one output file per month with
              the nine d<day>t<time> attributes, or 'corpus' to write a
              single output file with nine attributes per month.`,
			shorthand:  "m",
			defaultVal: "single",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "corpus-name",
			usage: `
              corpus-name is the base name of the output file in corpus mode.`,
			defaultVal: meshpop.DefaultCorpusName,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "output-format",
			usage: `
              output-format is 'geojsonl' or 'shp'.`,
			defaultVal: meshpop.FormatGeoJSONL,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "legacy-d2t2",
			usage: `
              legacy-d2t2 fills the d2t2 attribute from d2t0 in single
              mode, matching the output of earlier releases.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "row-errors",
			usage: `
              row-errors is 'abort' to fail on a row with a malformed
              population, or 'skip' to drop the row with a warning.`,
			defaultVal: "abort",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "workers",
			usage: `
              workers is the number of files processed at once. The
              default of 0 uses one worker per CPU.`,
			shorthand:  "w",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "resolver-cache-size",
			usage: `
              resolver-cache-size is the number of cell polygons kept in
              memory by each resolver. 0 means no limit.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "shared-resolver",
			usage: `
              shared-resolver makes all workers share one cell polygon
              cache instead of each worker keeping its own.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "periods",
			usage: `
              periods lists the months (YYYYMM or YYYY-MM) included in
              corpus mode. By default every month found in the input is
              included.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "checkpoint-dir",
			usage: `
              checkpoint-dir is a directory where aggregation results are
              cached between runs. Caching is off if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "refresh-checkpoints",
			usage: `
              refresh-checkpoints discards cached aggregation results for
              the input being converted.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "tippecanoe",
			usage: `
              tippecanoe is the tile builder executable.`,
			defaultVal: "tippecanoe",
			flagsets:   []*pflag.FlagSet{tilesCmd.Flags()},
		},
		{
			name: "tile-dir",
			usage: `
              tile-dir is the directory tiles are written to.`,
			defaultVal: "meshes",
			flagsets:   []*pflag.FlagSet{tilesCmd.Flags()},
		},
		{
			name: "min-zoom",
			usage: `
              min-zoom is the lowest zoom level of the tiles.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{tilesCmd.Flags()},
		},
		{
			name: "max-zoom",
			usage: `
              max-zoom is the highest zoom level of the tiles.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{tilesCmd.Flags()},
		},
		{
			name: "allow-partial",
			usage: `
              allow-partial builds tiles from output files that lack a
              completion manifest.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{tilesCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("MESHPOP")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(extractCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(tilesCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("meshpop: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// setLogger configures Log from the log-level and log-file options.
// Messages go to the command's output and, if set, the log file.
func setLogger(cmd *cobra.Command) error {
	level, err := logrus.ParseLevel(Cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("meshpop: %v", err)
	}
	Log.SetLevel(level)
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	}
	var out io.Writer = cmd.OutOrStdout()
	if path := Cfg.GetString("log-file"); path != "" {
		f, err := os.Create(os.ExpandEnv(path))
		if err != nil {
			return fmt.Errorf("meshpop: problem creating log file: %v", err)
		}
		logFile = f
		out = io.MultiWriter(out, f)
	}
	Log.Out = out
	return nil
}

// closeLog closes the log file, if one was opened.
func closeLog() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "meshpop",
	Short: "Convert gridded population counts into map features.",
	Long: `meshpop converts population-count extracts keyed by 1 km mesh code,
day flag, and time of day into newline-delimited GeoJSON polygon
features with one attribute per time bucket, and builds vector tiles
from them. Use the subcommands specified below to access the
functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'MESHPOP_VAR' where 'VAR' is
the name of the variable to be set, upper-cased, with dashes replaced by
underscores. A .env file in the working directory is also read.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogger(cmd)
	},
	PersistentPostRunE: func(*cobra.Command, []string) error { return closeLog() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of meshpop.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("meshpop v%s\n", meshpop.Version)
	},
	DisableAutoGenTag: true,
}

// extractCmd unpacks the distribution archives.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Unpack the distribution archives",
	Long: `extract unpacks the distribution archives in zip-dir into
child-zip-dir, and then unpacks the per-month archives found there into
one <prefcode>-<year>-<month> directory per month under csv-dir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := meshpop.Extract(extractConfig(Cfg), Log)
		if err != nil {
			return err
		}
		Log.WithField("files", n).Info("extraction complete")
		return nil
	},
	DisableAutoGenTag: true,
}

// convertCmd converts the extracts into features.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert population extracts into features",
	Long: `convert reads every .csv file under csv-dir and writes one polygon
feature per mesh cell to output-dir. In single mode, each month is written to
<year>-<month>.geojsonl; in corpus mode, every month is written to
<corpus-name>.geojsonl. Each output file that is written completely gets a
.done.toml completion manifest next to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := pipelineConfig(Cfg)
		if err != nil {
			return err
		}
		sources, err := meshpop.DiscoverSources(os.ExpandEnv(Cfg.GetString("csv-dir")))
		if err != nil {
			return err
		}
		p, err := meshpop.New(cfg, Log)
		if err != nil {
			return err
		}
		report, err := p.Run(context.Background(), sources)
		if report != nil {
			for _, s := range report.Sinks {
				cmd.Printf("%s\t%d features\tcomplete=%v\n", s.Path, s.Features, s.Complete)
			}
		}
		return err
	},
	DisableAutoGenTag: true,
}

// tilesCmd builds vector tiles from the converted features.
var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Build vector tiles",
	Long: `tiles runs tippecanoe over the .geojsonl files in output-dir, with
one layer per file, writing the tiles to tile-dir. Files without a completion
manifest are skipped unless allow-partial is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sinks, err := findSinks(os.ExpandEnv(Cfg.GetString("output-dir")))
		if err != nil {
			return err
		}
		return meshpop.BuildTiles(context.Background(), tileConfig(Cfg), sinks, Log)
	},
	DisableAutoGenTag: true,
}

// findSinks returns the GeoJSONL files in dir, sorted.
func findSinks(dir string) ([]string, error) {
	sinks, err := filepath.Glob(filepath.Join(dir, "*."+meshpop.FormatGeoJSONL))
	if err != nil {
		return nil, fmt.Errorf("meshpop: finding output files: %v", err)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("meshpop: no .%s files in %s", meshpop.FormatGeoJSONL, dir)
	}
	sort.Strings(sinks)
	return sinks, nil
}
