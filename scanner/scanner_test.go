package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dlclark/regexp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
}

func TestScanFindsConfiguredExtensions(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cqscan")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	writeFiles(t, tempDir, map[string]string{
		"file1.c":        "int main() { return 0; }",
		"file2.h":        "void f();",
		"file3.txt":      "not source",
		"subdir/file4.c": "int g() { return 1; }",
	})

	s := New(tempDir, []string{".c", ".h"})
	found, err := s.Scan(nil)
	require.NoError(t, err)

	assert.Equal(t, 3, len(found), "should find 3 .c/.h files")

	foundPaths := make(map[string]bool)
	for _, f := range found {
		foundPaths[f.Path] = true
		assert.Greater(t, f.Size, int64(0))
	}
	assert.True(t, foundPaths[filepath.Join(tempDir, "file1.c")])
	assert.True(t, foundPaths[filepath.Join(tempDir, "file2.h")])
	assert.True(t, foundPaths[filepath.Join(tempDir, "subdir/file4.c")])
	assert.False(t, foundPaths[filepath.Join(tempDir, "file3.txt")])
}

func TestScanExcludeFilter(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cqscan")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	writeFiles(t, tempDir, map[string]string{
		"keep.c":        "int a;",
		"vendor/skip.c": "int b;",
	})

	exclude, err := regexp2.Compile("vendor", regexp2.None)
	require.NoError(t, err)

	s := New(tempDir, []string{".c"}, WithExclude(exclude))
	found, err := s.Scan(nil)
	require.NoError(t, err)

	require.Equal(t, 1, len(found))
	assert.True(t, strings.HasSuffix(found[0].Path, "keep.c"))
}

func TestScanStdinPathList(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cqscan")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	writeFiles(t, tempDir, map[string]string{"a.c": "int a;"})
	path := filepath.Join(tempDir, "a.c")

	s := New("-", nil)
	found, err := s.Scan(strings.NewReader(path + "\n"))
	require.NoError(t, err)

	require.Equal(t, 1, len(found))
	assert.Equal(t, path, found[0].Path)
}
