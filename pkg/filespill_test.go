package pkg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shard struct {
	Runs  []string
	Hits  map[int]int64
	Label string
}

func TestFileSpill(t *testing.T) {
	t.Run("default directory", func(t *testing.T) {
		spill, err := NewFileSpill[int]()
		require.NoError(t, err)
		defer spill.Close()

		assert.Equal(t, filepath.Join(os.TempDir(), spillDirName), filepath.Dir(spill.Path()))
	})

	t.Run("append and get", func(t *testing.T) {
		spill, err := NewFileSpillIn[string](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append("first"))
		require.NoError(t, spill.AppendBatch([]string{"second", "third"}))
		assert.Equal(t, uint64(3), spill.Len())

		for i, want := range []string{"first", "second", "third"} {
			got, err := spill.Get(uint64(i))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		got, err := spill.Get(3)
		require.Error(t, err)
		assert.Empty(t, got)
	})

	t.Run("range decodes fresh values", func(t *testing.T) {
		spill, err := NewFileSpillIn[shard](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.Append(shard{Runs: []string{"a", "b"}, Hits: map[int]int64{1: 2, 3: 4}, Label: "full"}))
		require.NoError(t, spill.Append(shard{Runs: []string{"c"}}))

		var seen []shard

		err = spill.Range(func(_ uint64, item shard) error {
			seen = append(seen, item)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, seen, 2)

		assert.Equal(t, []string{"c"}, seen[1].Runs)
		assert.Empty(t, seen[1].Hits, "hits must not carry over from the previous item")
		assert.Empty(t, seen[1].Label)
	})

	t.Run("range stops on callback error", func(t *testing.T) {
		spill, err := NewFileSpillIn[int](t.TempDir())
		require.NoError(t, err)
		defer spill.Close()

		require.NoError(t, spill.AppendBatch([]int{1, 2, 3}))

		boom := errors.New("boom")
		calls := 0

		err = spill.Range(func(_ uint64, item int) error {
			calls++
			if item == 2 {
				return boom
			}

			return nil
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})

	t.Run("close removes the file", func(t *testing.T) {
		spill, err := NewFileSpillIn[int](t.TempDir())
		require.NoError(t, err)
		require.NoError(t, spill.Append(1))

		require.NoError(t, spill.Close())
		require.NoError(t, spill.Close(), "closing twice is fine")

		_, err = os.Stat(spill.Path())
		assert.True(t, os.IsNotExist(err))

		assert.Error(t, spill.Append(2))
		assert.Error(t, spill.Range(func(uint64, int) error { return nil }))
	})

	t.Run("bad directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0o644))

		_, err := NewFileSpillIn[int](filepath.Join(file, "sub"))
		assert.Error(t, err)
	})
}
