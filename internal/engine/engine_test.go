package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cqlang/cq/internal/engine"
	"github.com/cqlang/cq/internal/pattern"
	"github.com/cqlang/cq/internal/query"
	"github.com/cqlang/cq/internal/sitter"
)

func buildQueryTree(t *testing.T, patternSrc string) *query.QueryTree {
	t.Helper()
	cursor, err := pattern.Normalize(patternSrc, sitter.LangC, false)
	require.NoError(t, err)
	defer cursor.Close()

	qt, err := query.Build(cursor, query.BuildOptions{})
	require.NoError(t, err)
	return qt
}

func TestRunMatchesAcrossMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.c": `void f(){ char b[16]; memcpy(b,src,16); }`,
		"b.c": `void f(){ int x = 1; }`,
	}
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		paths = append(paths, p)
	}

	qt := buildQueryTree(t, "memcpy(_,_,_);")
	defer qt.Close()

	results, err := engine.Run(context.Background(), zap.NewNop(), paths, engine.Options{
		Patterns: []*query.QueryTree{qt},
		Lang:     sitter.LangC,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	matched := 0
	for _, r := range results {
		require.NoError(t, r.Err)
		if len(r.Tuples) > 0 {
			matched++
		}
	}
	require.Equal(t, 1, matched, "only a.c contains a memcpy call")
}

func TestRunInvokesOnFileDonePerFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.c")
	require.NoError(t, os.WriteFile(p, []byte(`void f(){}`), 0o644))

	qt := buildQueryTree(t, "_;")
	defer qt.Close()

	count := 0
	_, err := engine.Run(context.Background(), zap.NewNop(), []string{p}, engine.Options{
		Patterns:   []*query.QueryTree{qt},
		Lang:       sitter.LangC,
		OnFileDone: func() { count++ },
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunReportsUnreadableFileAsPerFileError(t *testing.T) {
	qt := buildQueryTree(t, "_;")
	defer qt.Close()

	missing := filepath.Join(t.TempDir(), "missing.c")
	results, err := engine.Run(context.Background(), zap.NewNop(), []string{missing}, engine.Options{
		Patterns: []*query.QueryTree{qt},
		Lang:     sitter.LangC,
	})
	require.NoError(t, err, "a per-file read error must not abort the whole run")
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}
