// Package engine runs one or more compiled patterns across a set of
// source files using the two-pool concurrency model of spec.md §5: a
// parse pool that pre-filters and parses files, and a match pool that
// runs the Matcher and Composer over each parsed AST.
//
// It generalizes the teacher's lint/lint.go ProcessPath — a single
// semaphore-bounded fan-out into a result-collecting fan-in — into two
// connected pools joined by a bounded channel, using errgroup for
// first-error propagation and context-based cancellation instead of a
// raw sync.WaitGroup.
package engine

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cqlang/cq/internal/compose"
	"github.com/cqlang/cq/internal/matcher"
	"github.com/cqlang/cq/internal/query"
	"github.com/cqlang/cq/internal/sitter"
	"github.com/cqlang/cq/internal/types"
)

// Options configures one search run.
type Options struct {
	Patterns []*query.QueryTree // k >= 1; composed when k >= 2 (spec.md §4.4)
	Lang     sitter.Language
	Unique   bool
	Limit    bool

	// ParseWorkers and MatchWorkers bound each pool; zero selects
	// runtime.NumCPU(), mirroring the teacher's maxWorkers default.
	ParseWorkers int
	MatchWorkers int

	// QueueDepth bounds the channel joining the two pools (spec.md §5,
	// "back-pressure is provided by bounded channel capacity").
	QueueDepth int

	// OnFileDone, if set, is called once for every input file as soon as
	// its FileResult is ready, driving the caller's progress bar without
	// waiting for the whole run to finish.
	OnFileDone func()
}

// FileResult is one file's composed matches, or the error encountered
// reading or parsing it. Per-file errors never abort the run (spec.md
// §7): they are logged and the file is skipped.
type FileResult struct {
	File   string
	Tuples []compose.Tuple
	Err    error
}

// parseWorkItem is what the parse pool hands to the match pool: an
// already-parsed AST ready for §4.3/§4.4.
type parseWorkItem struct {
	file string
	tree *sitter.Tree
}

// Run executes the two-pool pipeline over files and streams one
// FileResult per input file (in arrival order, not necessarily input
// order — spec.md §5: "across files, order is not guaranteed during
// streaming; the presentation layer may buffer and sort").
//
// Run blocks until every file has been processed, the context is
// canceled, or an unrecoverable error occurs.
func Run(ctx context.Context, logger *zap.Logger, files []string, opts Options) ([]FileResult, error) {
	if opts.ParseWorkers <= 0 {
		opts.ParseWorkers = runtime.NumCPU()
	}
	if opts.MatchWorkers <= 0 {
		opts.MatchWorkers = runtime.NumCPU()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = opts.ParseWorkers * 2
	}

	identifiers := concreteIdentifiers(opts.Patterns)

	workCh := make(chan parseWorkItem, opts.QueueDepth)
	resultCh := make(chan FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)

	// Parse pool: pre-filter + parse, feeding workCh.
	pathCh := make(chan string, opts.QueueDepth)
	g.Go(func() error {
		defer close(pathCh)
		for _, f := range files {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case pathCh <- f:
			}
		}
		return nil
	})

	parseGroup, parseCtx := errgroup.WithContext(gctx)
	parseGroup.SetLimit(opts.ParseWorkers)
	for range make([]struct{}, opts.ParseWorkers) {
		parseGroup.Go(func() error {
			for {
				select {
				case <-parseCtx.Done():
					return nil
				case path, ok := <-pathCh:
					if !ok {
						return nil
					}
					parseOne(parseCtx, logger, path, identifiers, opts, workCh, resultCh)
				}
			}
		})
	}
	g.Go(func() error {
		err := parseGroup.Wait()
		close(workCh)
		return err
	})

	// Match pool: consumes parsed ASTs, runs §4.3/§4.4.
	matchGroup, matchCtx := errgroup.WithContext(gctx)
	matchGroup.SetLimit(opts.MatchWorkers)
	for range make([]struct{}, opts.MatchWorkers) {
		matchGroup.Go(func() error {
			for {
				select {
				case <-matchCtx.Done():
					return nil
				case item, ok := <-workCh:
					if !ok {
						return nil
					}
					matchOne(item, opts, resultCh)
				}
			}
		})
	}
	g.Go(matchGroup.Wait)

	if err := g.Wait(); err != nil {
		close(resultCh)
		return nil, err
	}
	close(resultCh)

	results := make([]FileResult, 0, len(files))
	for r := range resultCh {
		results = append(results, r)
	}
	return results, nil
}

// parseOne implements spec.md §5's parse-pool step: a cheap identifier
// pre-filter, then a full parse, pushed downstream as a work item.
func parseOne(ctx context.Context, logger *zap.Logger, path string, identifiers []string, opts Options, workCh chan<- parseWorkItem, resultCh chan<- FileResult) {
	source, err := os.ReadFile(path)
	if err != nil {
		if logger != nil {
			logger.Warn("cannot read file", zap.String("file", path), zap.Error(err))
		}
		resultCh <- FileResult{File: path, Err: err}
		notifyDone(opts)
		return
	}

	if !containsAllIdentifiers(source, identifiers) {
		resultCh <- FileResult{File: path}
		notifyDone(opts)
		return
	}

	tree, err := sitter.Parse(source, opts.Lang)
	if err != nil {
		if logger != nil {
			logger.Warn("parse failed", zap.String("file", path), zap.Error(err))
		}
		resultCh <- FileResult{File: path, Err: err}
		notifyDone(opts)
		return
	}

	select {
	case <-ctx.Done():
		tree.Close()
	case workCh <- parseWorkItem{file: path, tree: tree}:
	}
}

// matchOne implements spec.md §4.3/§4.4 for one parsed file.
func matchOne(item parseWorkItem, opts Options, resultCh chan<- FileResult) {
	defer item.tree.Close()

	streams := make([][]types.QueryResult, len(opts.Patterns))
	for i, qt := range opts.Patterns {
		streams[i] = matcher.MatchFile(qt, item.tree, item.file, matcher.Options{Unique: opts.Unique, Limit: opts.Limit})
	}

	tuples := compose.Compose(streams, compose.Options{Unique: opts.Unique})
	resultCh <- FileResult{File: item.file, Tuples: tuples}
	notifyDone(opts)
}

func notifyDone(opts Options) {
	if opts.OnFileDone != nil {
		opts.OnFileDone()
	}
}

// concreteIdentifiers harvests every Anchor identifier across every
// top-level pattern's whole QueryTree, once, up front (spec.md §5:
// "harvested once, up front").
func concreteIdentifiers(patterns []*query.QueryTree) []string {
	seen := make(map[string]bool)
	var out []string
	for _, qt := range patterns {
		for _, id := range qt.ConcreteIdentifiers() {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

func containsAllIdentifiers(source []byte, identifiers []string) bool {
	for _, id := range identifiers {
		if !bytes.Contains(source, []byte(id)) {
			return false
		}
	}
	return true
}
