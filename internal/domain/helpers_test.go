package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/luacover/internal/adapter"
	m "gooze.dev/pkg/luacover/internal/model"
)

func examplePath(name, file string) string {
	return filepath.Join("..", "..", "examples", name, file)
}

func readExample(t *testing.T, name, file string) []byte {
	t.Helper()

	content, err := os.ReadFile(examplePath(name, file))
	if err != nil {
		t.Fatalf("read example %s/%s: %v", name, file, err)
	}

	return content
}

func newTestStore() Store {
	return NewStore(adapter.NewLocalSourceFSAdapter(), adapter.NewLocalLuaParserAdapter(), NewClassifier(), NewAnalyzer())
}

// analyzeSource initializes src in a fresh store and returns both.
func analyzeSource(t *testing.T, path m.Path, src string) (Store, *m.SourceFile) {
	t.Helper()

	s := newTestStore()
	file, err := s.InitializeContent(path, []byte(src))
	require.NoError(t, err)
	require.True(t, file.Tracked, "expected %s to be analyzed", path)

	return s, file
}

func analyzeExample(t *testing.T, name, file string) (Store, *m.SourceFile) {
	t.Helper()

	return analyzeSource(t, m.Path(examplePath(name, file)), string(readExample(t, name, file)))
}

func lineClasses(file *m.SourceFile) []m.Classification {
	out := make([]m.Classification, len(file.Lines))
	for i, rec := range file.Lines {
		out[i] = rec.Class
	}

	return out
}
