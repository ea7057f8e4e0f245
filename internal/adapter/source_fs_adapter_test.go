package adapter

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	m "gooze.dev/pkg/luacover/internal/model"
)

func TestLocalSourceFSAdapter_Walk(t *testing.T) {
	t.Run("non recursive skips nested files", func(t *testing.T) {
		adapter := NewLocalSourceFSAdapter()

		root := t.TempDir()
		writeTestFile(t, filepath.Join(root, "main.lua"), "print(1)\n")

		nestedDir := filepath.Join(root, "nested")
		mustMkdir(t, nestedDir)
		writeTestFile(t, filepath.Join(nestedDir, "child.lua"), "return 2\n")

		var visited []string
		err := adapter.Walk(m.Path(root), false, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			visited = append(visited, path)
			return nil
		})
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}

		for _, forbidden := range []string{nestedDir, filepath.Join(nestedDir, "child.lua")} {
			if containsPath(visited, forbidden) {
				t.Fatalf("Walk() unexpectedly visited %s when recursive is false", forbidden)
			}
		}

		if !containsPath(visited, filepath.Join(root, "main.lua")) {
			t.Fatalf("Walk() did not visit top-level file")
		}
	})

	t.Run("recursive visits nested files", func(t *testing.T) {
		adapter := NewLocalSourceFSAdapter()

		root := t.TempDir()
		writeTestFile(t, filepath.Join(root, "main.lua"), "print(1)\n")

		nestedDir := filepath.Join(root, "nested")
		mustMkdir(t, nestedDir)
		child := filepath.Join(nestedDir, "child.lua")
		writeTestFile(t, child, "return 2\n")

		var visited []string
		err := adapter.Walk(m.Path(root), true, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			visited = append(visited, path)
			return nil
		})
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}

		if !containsPath(visited, child) {
			t.Fatalf("Walk() did not visit nested file when recursive")
		}
	})
}

func TestLocalSourceFSAdapter_ReadFile(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "main.lua")
	content := "local x = 1\n" + "print(x)\n"
	writeTestFile(t, path, content)

	got, err := adapter.ReadFile(m.Path(path))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if string(got) != content {
		t.Fatalf("ReadFile() = %q, want %q", string(got), content)
	}
}

func TestLocalSourceFSAdapter_HashFile(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "main.lua")
	content := []byte("return {}\n")
	writeTestBytes(t, path, content)

	expected := fmt.Sprintf("%x", sha256.Sum256(content))

	hash, err := adapter.HashFile(m.Path(path))
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}

	if hash != expected {
		t.Fatalf("HashFile() = %s, want %s", hash, expected)
	}
}

func TestLocalSourceFSAdapter_FileInfo(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	path := filepath.Join(root, "main.lua")
	writeTestFile(t, path, "print(1)\n")

	info, err := adapter.FileInfo(m.Path(path))
	if err != nil {
		t.Fatalf("FileInfo() error = %v", err)
	}

	if info.IsDir() {
		t.Fatalf("FileInfo() reported file as directory")
	}

	dirInfo, err := adapter.FileInfo(m.Path(root))
	if err != nil {
		t.Fatalf("FileInfo() error = %v", err)
	}

	if !dirInfo.IsDir() {
		t.Fatalf("FileInfo() reported directory as file")
	}
}

func TestLocalSourceFSAdapter_Walk_SkipsVCSDirs(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	mustMkdir(t, gitDir)
	writeTestFile(t, filepath.Join(gitDir, "hook.lua"), "print(1)\n")

	var visited []string
	err := adapter.Walk(m.Path(root), true, func(path string, info os.FileInfo, err error) error {
		visited = append(visited, path)
		return err
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if containsPath(visited, filepath.Join(gitDir, "hook.lua")) {
		t.Fatalf("Walk() descended into .git")
	}
}

func TestLocalSourceFSAdapter_FindProjectRoot(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	projectDir := filepath.Join(root, "project")
	mustMkdir(t, projectDir)
	writeTestFile(t, filepath.Join(projectDir, ProjectMarker), "output: text\n")

	subDir := filepath.Join(projectDir, "sub", "pkg")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	got, err := adapter.FindProjectRoot(m.Path(filepath.Join(subDir, "file.lua")))
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}

	if got != m.Path(projectDir) {
		t.Fatalf("FindProjectRoot() = %s, want %s", got, projectDir)
	}

	got, err = adapter.FindProjectRoot(m.Path(subDir))
	if err != nil || got != m.Path(projectDir) {
		t.Fatalf("FindProjectRoot(dir) = %s, %v", got, err)
	}
}

func TestLocalSourceFSAdapter_WriteFileCreatesParents(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	path := filepath.Join(t.TempDir(), "out", "nested", "main.lua")
	if err := adapter.WriteFile(m.Path(path), []byte("print(1)\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}

	if string(got) != "print(1)\n" {
		t.Fatalf("WriteFile() wrote %q", got)
	}
}

func TestLocalSourceFSAdapter_PathHelpers(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	base := m.Path("/tmp/project")
	target := m.Path("/tmp/project/sub/dir/file.lua")

	rel, err := adapter.RelPath(base, target)
	if err != nil {
		t.Fatalf("RelPath() error = %v", err)
	}

	if string(rel) != filepath.Join("sub", "dir", "file.lua") {
		t.Fatalf("RelPath() = %s, want %s", rel, filepath.Join("sub", "dir", "file.lua"))
	}

	joined := adapter.JoinPath("/tmp", "project", "sub", "file.lua")
	if string(joined) != filepath.Join("/tmp", "project", "sub", "file.lua") {
		t.Fatalf("JoinPath() = %s, want %s", joined, filepath.Join("/tmp", "project", "sub", "file.lua"))
	}
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	writeTestBytes(t, path, []byte(contents))
}

func writeTestBytes(t *testing.T, path string, contents []byte) {
	t.Helper()
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("failed to create dir %s: %v", path, err)
	}
}

func containsPath(paths []string, target string) bool {
	for _, p := range paths {
		if p == target {
			return true
		}
	}

	return false
}
