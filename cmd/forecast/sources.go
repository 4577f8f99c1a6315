package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/andresuchdata/vendcast/internal/drive"
	"github.com/andresuchdata/vendcast/internal/storage"
	"github.com/rs/zerolog/log"
)

// fileSource reads transaction exports from local paths.
type fileSource struct {
	paths []string
}

func (s fileSource) LoadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return drive.ReadTransactionFiles(s.paths)
}

// storageSource downloads the CSV exports kept under a bucket prefix and
// reads them in key order.
type storageSource struct {
	store  storage.ObjectStorage
	prefix string
	dir    string
}

func (s storageSource) LoadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	objects, err := s.store.ListObjects(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	var paths []string
	for _, obj := range objects {
		if !strings.EqualFold(path.Ext(obj.Key), ".csv") {
			continue
		}
		dest := filepath.Join(s.dir, filepath.FromSlash(obj.Key))
		if err := s.store.DownloadObject(ctx, obj.Key, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no transaction exports under %q", s.prefix)
	}

	log.Info().Str("prefix", s.prefix).Int("files", len(paths)).Msg("transaction exports downloaded")
	return drive.ReadTransactionFiles(paths)
}
