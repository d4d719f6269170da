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
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is one population extract found under a source root.
type SourceFile struct {
	Path string
	// PrefCode is the prefecture code of the extract.
	PrefCode string
	// Period is the year and month of the extract.
	Period Period
}

// Label returns the period label that names the extract's
// single-period sink, e.g. "2020-01".
func (s SourceFile) Label() string { return s.Period.Label() }

// ParseSourceDir parses a source directory name of the form
// "<prefcode>-<year>-<month>".
func ParseSourceDir(name string) (prefCode string, p Period, err error) {
	parts := strings.Split(name, "-")
	if len(parts) != 3 || parts[0] == "" || len(parts[1]) != 4 || parts[2] == "" || len(parts[2]) > 2 {
		return "", Period{}, fmt.Errorf("meshpop: source directory %q is not named <prefcode>-<year>-<month>", name)
	}
	for _, s := range parts {
		if strings.Trim(s, "0123456789") != "" {
			return "", Period{}, fmt.Errorf("meshpop: source directory %q is not named <prefcode>-<year>-<month>", name)
		}
	}
	return parts[0], NewPeriod(parts[1], parts[2]), nil
}

// DiscoverSources returns every ".csv" file under root in lexicographic
// path order. Each file must be inside a directory directly under root
// named "<prefcode>-<year>-<month>".
func DiscoverSources(root string) ([]SourceFile, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpop: discovering sources: %w", err)
	}
	sort.Strings(paths)

	o := make([]SourceFile, len(paths))
	for i, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, fmt.Errorf("meshpop: discovering sources: %w", err)
		}
		elems := strings.Split(filepath.ToSlash(rel), "/")
		if len(elems) < 2 {
			return nil, fmt.Errorf("meshpop: source %s is not inside a <prefcode>-<year>-<month> directory", path)
		}
		pref, p, err := ParseSourceDir(elems[0])
		if err != nil {
			return nil, err
		}
		o[i] = SourceFile{Path: path, PrefCode: pref, Period: p}
	}
	return o, nil
}
