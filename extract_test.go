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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zipBytes returns a zip archive holding the given files.
func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var b bytes.Buffer
	w := zip.NewWriter(&b)
	for name, data := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return b.Bytes()
}

func TestExtract(t *testing.T) {
	root := t.TempDir()
	csv := []byte("prefcode,citycode,mesh1kmid,dayflag,timezone,population\n13,13101,53394611,0,0,5\n")
	inner := zipBytes(t, map[string][]byte{"monthly_mdp_mesh1km.csv": csv})
	outer := zipBytes(t, map[string][]byte{
		"13/2020/01/monthly_mdp_mesh1km.zip": inner,
		"13/2020/02/monthly_mdp_mesh1km.zip": inner,
		"13/readme.zip":                      inner,
	})
	cfg := ExtractConfig{
		ZipDir:      filepath.Join(root, "zip"),
		ChildZipDir: filepath.Join(root, "child_zip"),
		CSVDir:      filepath.Join(root, "csv"),
	}
	require.NoError(t, os.MkdirAll(cfg.ZipDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ZipDir, "13_2020.zip"), outer, 0644))

	log, _ := test.NewNullLogger()
	n, err := Extract(cfg, log)
	require.NoError(t, err)
	// Three child archives and two extracts.
	assert.Equal(t, 5, n)

	srcs, err := DiscoverSources(cfg.CSVDir)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "2020-01", srcs[0].Label())
	assert.Equal(t, "2020-02", srcs[1].Label())
	b, err := os.ReadFile(srcs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, csv, b)
}

func TestUnzipRejectsEscapingEntries(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "evil.zip")
	require.NoError(t, os.WriteFile(path, zipBytes(t, map[string][]byte{"../evil.csv": []byte("x")}), 0644))
	_, err := Unzip(path, filepath.Join(root, "out"))
	assert.Error(t, err)
	_, err = os.Stat(filepath.Join(root, "evil.csv"))
	assert.True(t, os.IsNotExist(err))
}
