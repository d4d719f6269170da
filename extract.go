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
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
)

// ExtractConfig holds the directories of the two extraction stages.
type ExtractConfig struct {
	// ZipDir holds the distribution archives.
	ZipDir string
	// ChildZipDir receives the contents of the distribution archives,
	// which are per-month archives laid out as <pref>/<year>/<month>/*.zip.
	ChildZipDir string
	// CSVDir receives the extracts, one <pref>-<year>-<month> directory
	// per month.
	CSVDir string
}

// Extract unpacks the distribution archives in two stages: every zip
// file under ZipDir is unpacked into ChildZipDir, and then every
// <pref>/<year>/<month>/*.zip under ChildZipDir is unpacked into
// CSVDir/<pref>-<year>-<month>. It returns the number of files written.
func Extract(cfg ExtractConfig, log logrus.FieldLogger) (int, error) {
	outer, err := findZips(cfg.ZipDir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, z := range outer {
		log.WithField("archive", z).Info("extracting distribution archive")
		c, err := Unzip(z, cfg.ChildZipDir)
		if err != nil {
			return n, err
		}
		n += c
	}

	inner, err := findZips(cfg.ChildZipDir)
	if err != nil {
		return n, err
	}
	for _, z := range inner {
		rel, err := filepath.Rel(cfg.ChildZipDir, z)
		if err != nil {
			return n, fmt.Errorf("meshpop: extracting %s: %w", z, err)
		}
		elems := strings.Split(filepath.ToSlash(rel), "/")
		if len(elems) != 4 {
			log.WithField("archive", z).Warn("skipping archive outside <pref>/<year>/<month>")
			continue
		}
		dir := filepath.Join(cfg.CSVDir, elems[0]+"-"+elems[1]+"-"+elems[2])
		log.WithFields(logrus.Fields{"archive": z, "dir": dir}).Debug("extracting monthly archive")
		c, err := Unzip(z, dir)
		if err != nil {
			return n, err
		}
		n += c
	}
	return n, nil
}

func findZips(root string) ([]string, error) {
	var o []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
			o = append(o, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpop: finding archives: %w", err)
	}
	sort.Strings(o)
	return o, nil
}

// Unzip writes the contents of the zip archive at path into dir and
// returns the number of files written. Entries that would be written
// outside dir are rejected.
func Unzip(path, dir string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("meshpop: opening archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("meshpop: extracting %s: %w", path, err)
	}
	n := 0
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return n, fmt.Errorf("meshpop: archive %s entry %q escapes %s", path, f.Name, dir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return n, fmt.Errorf("meshpop: extracting %s: %w", path, err)
			}
			continue
		}
		if err := unzipFile(f, target); err != nil {
			return n, fmt.Errorf("meshpop: extracting %s from %s: %w", f.Name, path, err)
		}
		n++
	}
	return n, nil
}

func unzipFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	w, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
