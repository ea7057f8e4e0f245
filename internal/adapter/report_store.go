package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/luacover/internal/model"
)

// File names used under the output directory.
const (
	RawDataFile = "coverage.yaml"
	shardPrefix = "shard_"
	shardSuffix = ".yaml"
)

// ReportStore persists raw coverage data as yaml files.
type ReportStore interface {
	SaveRawData(path m.Path, raw m.RawData) error
	LoadRawData(path m.Path) (m.RawData, error)
	// ListShards returns the shard files under dir in name order.
	ListShards(dir m.Path) ([]m.Path, error)
}

// ShardFile returns the name of the file holding shard index's data.
func ShardFile(index uint) string {
	return fmt.Sprintf("%s%d%s", shardPrefix, index, shardSuffix)
}

// LocalReportStore implements ReportStore on the local file system.
type LocalReportStore struct{}

// NewLocalReportStore constructs a LocalReportStore.
func NewLocalReportStore() *LocalReportStore {
	return &LocalReportStore{}
}

// SaveRawData writes raw to path, replacing any previous file atomically.
func (s *LocalReportStore) SaveRawData(path m.Path, raw m.RawData) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw data: %w", err)
	}

	target := string(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return m.NewError(m.KindIO, path, 0, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".raw-*")
	if err != nil {
		return m.NewError(m.KindIO, path, 0, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return m.NewError(m.KindIO, path, 0, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return m.NewError(m.KindIO, path, 0, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return m.NewError(m.KindIO, path, 0, err)
	}

	return nil
}

// LoadRawData reads a file written by SaveRawData.
func (s *LocalReportStore) LoadRawData(path m.Path) (m.RawData, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return m.RawData{}, m.NewError(m.KindIO, path, 0, err)
	}

	var raw m.RawData
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return m.RawData{}, m.NewError(m.KindParse, path, 0, err)
	}

	if raw.Version != m.RawDataVersion {
		return m.RawData{}, m.NewError(m.KindValidation, path, 0,
			fmt.Errorf("raw data version %d, want %d", raw.Version, m.RawDataVersion))
	}

	return raw, nil
}

func (s *LocalReportStore) ListShards(dir m.Path) ([]m.Path, error) {
	entries, err := os.ReadDir(string(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, m.NewError(m.KindIO, dir, 0, err)
	}

	var shards []m.Path

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, shardPrefix) || !strings.HasSuffix(name, shardSuffix) {
			continue
		}

		shards = append(shards, m.Path(filepath.Join(string(dir), name)))
	}

	sort.Slice(shards, func(i, j int) bool { return shards[i] < shards[j] })

	return shards, nil
}
