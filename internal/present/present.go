// Package present implements the Output collaborator of spec.md §6: it
// reads a QueryResult's root span, prints the surrounding source with
// captured-variable highlighting, and merges overlapping context
// windows within the same file into a single printout — the context-
// merging behavior SPEC_FULL.md supplements from original_source/.
//
// Styling follows the teacher's formatter package: fixed fatih/color
// styles per role (file/line labels, captures, rule-like headers).
package present

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/cqlang/cq/internal/types"
)

var (
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgHiBlue, color.Bold)
	captureStyle = color.New(color.FgGreen, color.Bold)
	countStyle   = color.New(color.FgYellow, color.Bold)
)

// Options controls context-window sizing (spec.md §6: "before/after
// line counts (default 5 each)").
type Options struct {
	Before int
	After  int
	Color  bool
}

// DefaultOptions is spec.md §6's stated default.
func DefaultOptions() Options {
	return Options{Before: 5, After: 5}
}

// window is one result's computed [startLine,endLine] context range,
// kept alongside its result for highlighting after merge.
type window struct {
	startLine, endLine int
	result             types.QueryResult
}

// Render prints every result found in one file's source, merging
// overlapping context windows into one printout (spec.md §6; the
// SUPPLEMENTED FEATURES context-merging rule).
func Render(file string, source []byte, results []types.QueryResult, opts Options) string {
	if len(results) == 0 {
		return ""
	}

	lines := splitLines(source)
	offsets := lineOffsets(lines)

	windows := make([]window, 0, len(results))
	for _, r := range results {
		start := lineOf(offsets, r.RootSpan.Start.Byte) - opts.Before
		end := lineOf(offsets, r.RootSpan.End.Byte) + opts.After
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		windows = append(windows, window{startLine: start, endLine: end, result: r})
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].startLine < windows[j].startLine })
	merged := mergeWindows(windows)

	var b strings.Builder
	for _, m := range merged {
		b.WriteString(renderWindow(file, lines, m, opts))
		b.WriteString("\n")
	}
	return b.String()
}

// mergedWindow groups every result whose context window overlapped,
// so their captures are all highlighted in one combined printout.
type mergedWindow struct {
	startLine, endLine int
	results            []types.QueryResult
}

func mergeWindows(windows []window) []mergedWindow {
	var out []mergedWindow
	for _, w := range windows {
		if len(out) > 0 && w.startLine <= out[len(out)-1].endLine+1 {
			last := &out[len(out)-1]
			if w.endLine > last.endLine {
				last.endLine = w.endLine
			}
			last.results = append(last.results, w.result)
			continue
		}
		out = append(out, mergedWindow{startLine: w.startLine, endLine: w.endLine, results: []types.QueryResult{w.result}})
	}
	return out
}

func renderWindow(file string, lines []string, m mergedWindow, opts Options) string {
	var b strings.Builder

	loc := fmt.Sprintf("%d", m.startLine)
	if opts.Color {
		b.WriteString(fileStyle.Sprintf("%s", file))
		b.WriteString(lineStyle.Sprintf(":%s\n", loc))
	} else {
		fmt.Fprintf(&b, "%s:%s\n", file, loc)
	}

	highlights := captureSpans(m.results)

	width := len(fmt.Sprintf("%d", m.endLine))
	for i := m.startLine; i <= m.endLine && i <= len(lines); i++ {
		lineNum := fmt.Sprintf("%*d", width, i)
		text := highlightLine(lines[i-1], i, highlights, opts.Color)
		if opts.Color {
			b.WriteString(lineStyle.Sprintf("%s | ", lineNum))
			b.WriteString(text)
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "%s | %s\n", lineNum, text)
		}
	}
	return b.String()
}

type span struct {
	line       int
	startCol   int
	endCol     int
}

func captureSpans(results []types.QueryResult) []span {
	var out []span
	var walk func(r types.QueryResult)
	walk = func(r types.QueryResult) {
		for _, c := range r.Captures {
			if c.Kind != types.Variable {
				continue
			}
			out = append(out, span{
				line:     c.Span.Start.Line,
				startCol: c.Span.Start.Column - 1, // Position.Column is 1-indexed
				endCol:   c.Span.End.Column - 1,
			})
		}
		for _, child := range r.ChildResults {
			walk(child)
		}
	}
	for _, r := range results {
		walk(r)
	}
	return out
}

func highlightLine(line string, lineNum int, spans []span, colorOn bool) string {
	if !colorOn {
		return line
	}
	type cut struct{ start, end int }
	var cuts []cut
	for _, s := range spans {
		if s.line == lineNum && s.startCol >= 0 && s.endCol <= len(line) && s.startCol < s.endCol {
			cuts = append(cuts, cut{s.startCol, s.endCol})
		}
	}
	if len(cuts) == 0 {
		return line
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })

	var b strings.Builder
	pos := 0
	for _, c := range cuts {
		if c.start < pos {
			continue
		}
		b.WriteString(line[pos:c.start])
		b.WriteString(captureStyle.Sprint(line[c.start:c.end]))
		pos = c.end
	}
	b.WriteString(line[pos:])
	return b.String()
}

// Summary implements the SUPPLEMENTED FEATURES "per-pattern statistics
// on exit" (count of files scanned, files matched, total matches),
// printed to stderr when more than one file is searched.
func Summary(filesScanned, filesMatched, totalMatches int, colorOn bool) string {
	if colorOn {
		return countStyle.Sprintf("%d files scanned, %d matched, %d results\n", filesScanned, filesMatched, totalMatches)
	}
	return fmt.Sprintf("%d files scanned, %d matched, %d results\n", filesScanned, filesMatched, totalMatches)
}

func splitLines(source []byte) []string {
	return strings.Split(string(source), "\n")
}

func lineOffsets(lines []string) []int {
	offsets := make([]int, len(lines)+1)
	pos := 0
	for i, l := range lines {
		offsets[i] = pos
		pos += len(l) + 1
	}
	offsets[len(lines)] = pos
	return offsets
}

func lineOf(offsets []int, byteOffset uint) int {
	target := int(byteOffset)
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > target })
	if i == 0 {
		return 1
	}
	return i
}
