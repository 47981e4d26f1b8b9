// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package source supplies candidate items to act on.
package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/types"
)

// Source returns up to maxCount items in the order they should be acted on.
type Source interface {
	FetchCandidates(ctx context.Context, maxCount int) ([]types.Item, error)
}

// File reads items from a YAML or JSON list on disk. The file is re-read on
// every fetch so that an external collector can rewrite it between runs.
type File struct {
	Path string
}

var _ Source = (*File)(nil)

// NewFile returns a Source backed by path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) FetchCandidates(_ context.Context, maxCount int) ([]types.Item, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.CodeSourceFetchFailure, "reading item file", pgerr.Field("path", f.Path))
	}

	var items []types.Item
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".json":
		err = json.Unmarshal(data, &items)
	default:
		err = yaml.Unmarshal(data, &items)
	}
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.CodeSourceInvalidFormat, "parsing item file", pgerr.Field("path", f.Path))
	}

	out := make([]types.Item, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.URL) == "" {
			continue
		}
		if it.Description == "" {
			it.Description = it.Title
		}
		out = append(out, it)
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
	}
	return out, nil
}
