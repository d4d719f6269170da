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
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ManifestSuffix is appended to a sink path to form the path of its
// completion manifest.
const ManifestSuffix = ".done.toml"

// Manifest records that a sink was written completely. Sinks without a
// manifest may hold partial output from a failed batch.
type Manifest struct {
	RunID     string    `toml:"run_id"`
	Sink      string    `toml:"sink"`
	Layer     string    `toml:"layer"`
	Mode      string    `toml:"mode"`
	Features  int       `toml:"features"`
	Keys      []string  `toml:"keys"`
	Sources   []string  `toml:"sources"`
	InputHash string    `toml:"input_hash"`
	Finished  time.Time `toml:"finished"`
}

// ManifestPath returns the manifest location for sink.
func ManifestPath(sink string) string { return sink + ManifestSuffix }

// WriteManifest writes m next to its sink.
func WriteManifest(m *Manifest) error {
	path := ManifestPath(m.Sink)
	f, err := os.Create(path)
	if err != nil {
		return &SinkWriteError{Path: path, Err: err}
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return &SinkWriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &SinkWriteError{Path: path, Err: err}
	}
	return nil
}

// ReadManifest reads the manifest of sink.
func ReadManifest(sink string) (*Manifest, error) {
	m := new(Manifest)
	if _, err := toml.DecodeFile(ManifestPath(sink), m); err != nil {
		return nil, fmt.Errorf("meshpop: reading manifest of %s: %w", sink, err)
	}
	return m, nil
}

// IsComplete reports whether sink has a readable completion manifest.
func IsComplete(sink string) bool {
	_, err := ReadManifest(sink)
	return err == nil
}

// removeManifest deletes any manifest left for sink by an earlier run.
func removeManifest(sink string) error {
	err := os.Remove(ManifestPath(sink))
	if err != nil && !os.IsNotExist(err) {
		return &SinkWriteError{Path: ManifestPath(sink), Err: err}
	}
	return nil
}
