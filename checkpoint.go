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
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Kanahiro/mesh1km-pop/internal/hash"
	"github.com/ctessum/requestcache"
)

func init() {
	gob.Register(&Aggregation{})
}

// batchKey identifies the input and options of one aggregation batch.
// Its hash names the batch's checkpoint.
type batchKey struct {
	Sources []string
	Digests []string
	Mode    Mode
	Policy  RowErrorPolicy
	Legacy  bool
	Periods []Period
}

// loadCheckpointCache initializes the cache in front of the aggregation
// stage. It returns nil without a directory. The cache's workers run for
// the life of the process.
func loadCheckpointCache(f requestcache.ProcessFunc, workers int, dir string) (*requestcache.Cache, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("meshpop: creating checkpoint directory: %w", err)
	}
	return requestcache.NewCache(f, workers,
		requestcache.Disk(dir, requestcache.MarshalGob, requestcache.UnmarshalGob)), nil
}

// checkpointPath returns the location of the checkpoint with the given
// key in dir.
func checkpointPath(dir, key string) string {
	return filepath.Join(dir, key+requestcache.FileExtension)
}

// invalidateCheckpoint removes the checkpoint with the given key, if any.
func invalidateCheckpoint(dir, key string) error {
	if dir == "" {
		return nil
	}
	err := os.Remove(checkpointPath(dir, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("meshpop: invalidating checkpoint: %w", err)
	}
	return nil
}

// batchKeyFor returns the key of the batch made up of srcs.
func (p *Pipeline) batchKeyFor(srcs []SourceFile) (string, error) {
	paths := make([]string, len(srcs))
	for i, s := range srcs {
		paths[i] = s.Path
	}
	digests, err := hash.Files(paths...)
	if err != nil {
		return "", fmt.Errorf("meshpop: hashing sources: %w", err)
	}
	k := batchKey{
		Sources: paths,
		Digests: digests,
		Mode:    p.cfg.Mode,
		Policy:  p.cfg.RowErrors,
		Legacy:  p.cfg.LegacyD2T2,
	}
	if p.cfg.Mode == MultiPeriod {
		k.Periods = p.cfg.Periods
	}
	return hash.Hash(k), nil
}

// aggregate returns the aggregation of the batch made up of srcs,
// from its checkpoint if one exists. The key of the batch is returned
// as well.
func (p *Pipeline) aggregate(ctx context.Context, srcs []SourceFile) (*Aggregation, string, error) {
	key, err := p.batchKeyFor(srcs)
	if err != nil {
		return nil, "", err
	}
	if p.cfg.RefreshCheckpoints {
		if err := invalidateCheckpoint(p.cfg.CheckpointDir, key); err != nil {
			return nil, "", err
		}
	}
	var result interface{}
	if p.checkpoints == nil {
		result, err = p.readBatch(ctx, srcs)
	} else {
		result, err = p.checkpoints.NewRequest(ctx, srcs, key).Result()
	}
	if err != nil {
		return nil, "", err
	}
	agg, ok := result.(*Aggregation)
	if !ok {
		return nil, "", fmt.Errorf("meshpop: checkpoint %s holds %T", key, result)
	}
	return agg, key, nil
}
