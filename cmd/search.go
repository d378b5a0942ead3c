package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cqlang/cq/internal/compose"
	"github.com/cqlang/cq/internal/config"
	"github.com/cqlang/cq/internal/engine"
	"github.com/cqlang/cq/internal/errs"
	"github.com/cqlang/cq/internal/pattern"
	"github.com/cqlang/cq/internal/present"
	"github.com/cqlang/cq/internal/query"
	"github.com/cqlang/cq/internal/sitter"
	"github.com/cqlang/cq/internal/types"
	"github.com/cqlang/cq/scanner"
)

var (
	patterns     []string
	cppMode      bool
	extensions   []string
	includeRegex string
	excludeRegex string
	unique       bool
	regexFlags   []string
	limit        bool
	force        bool
	beforeLines  int
	afterLines   int
	forceColor   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [paths...]",
	Short: "Search C/C++ source for a structural pattern",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: please provide file or directory paths")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		os.Exit(runSearch(ctx, logger, args))
	},
}

func init() {
	searchCmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "structural pattern (repeat for multi-pattern composition)")
	searchCmd.Flags().BoolVarP(&cppMode, "cpp", "X", false, "select the C++ grammar and default extensions")
	searchCmd.Flags().StringSliceVarP(&extensions, "extensions", "e", nil, "override default file extensions")
	searchCmd.Flags().StringVar(&includeRegex, "include", "", "only search paths matching this regex")
	searchCmd.Flags().StringVar(&excludeRegex, "exclude", "", "skip paths matching this regex")
	searchCmd.Flags().BoolVarP(&unique, "unique", "u", false, "require distinct metavariable bindings")
	searchCmd.Flags().StringArrayVarP(&regexFlags, "regex", "R", nil, "metavariable regex constraint, v=re or v!=re")
	searchCmd.Flags().BoolVarP(&limit, "limit", "l", false, "first match per enclosing function only")
	searchCmd.Flags().BoolVarP(&force, "force", "f", false, "proceed despite pattern syntax errors")
	searchCmd.Flags().IntVarP(&beforeLines, "before", "B", 5, "context lines before a match")
	searchCmd.Flags().IntVarP(&afterLines, "after", "A", 5, "context lines after a match")
	searchCmd.Flags().BoolVarP(&forceColor, "color", "C", false, "force colored output")

	// The root command runs a search directly when given paths, so it
	// accepts the same flags.
	rootCmd.Flags().AddFlagSet(searchCmd.Flags())
}

func runSearch(ctx context.Context, logger *zap.Logger, paths []string) int {
	if len(patterns) == 0 {
		fmt.Println("error: at least one -p/--pattern is required")
		return 1
	}

	lang := sitter.LangC
	if cppMode {
		lang = sitter.LangCPP
	}

	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			logger.Warn("could not load config, using defaults", zap.Error(err))
		} else {
			cfg = loaded
		}
	}

	exts := extensions
	if len(exts) == 0 {
		if lang == sitter.LangCPP {
			exts = cfg.Extensions.CPP
		} else {
			exts = cfg.Extensions.C
		}
	}

	regexConstraints, err := parseRegexFlags(regexFlags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	queryTrees, buildErr := buildQueries(patterns, lang, force, regexConstraints)
	if buildErr != nil {
		fmt.Fprintln(os.Stderr, buildErr)
		if !force {
			return 1
		}
	}
	if len(queryTrees) == 0 {
		fmt.Fprintln(os.Stderr, "no pattern could be lowered to a query")
		return 1
	}
	defer func() {
		for _, qt := range queryTrees {
			qt.Close()
		}
	}()

	var include, exclude *regexp2.Regexp
	if includeRegex != "" {
		include, err = regexp2.Compile(includeRegex, regexp2.None)
		if err != nil {
			fmt.Fprintln(os.Stderr, errs.New(errs.RegexCompile, "invalid --include", err))
			return 1
		}
	}
	if excludeRegex != "" {
		exclude, err = regexp2.Compile(excludeRegex, regexp2.None)
		if err != nil {
			fmt.Fprintln(os.Stderr, errs.New(errs.RegexCompile, "invalid --exclude", err))
			return 1
		}
	}

	var scanOpts []scanner.Option
	if include != nil {
		scanOpts = append(scanOpts, scanner.WithInclude(include))
	}
	if exclude != nil {
		scanOpts = append(scanOpts, scanner.WithExclude(exclude))
	}

	var files []string
	for _, root := range paths {
		sc := scanner.New(root, exts, scanOpts...)
		found, err := sc.Scan(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, fi := range found {
			files = append(files, fi.Path)
		}
	}

	var bar *progressbar.ProgressBar
	if len(files) > 1 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("searching"),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	results, err := engine.Run(ctx, logger, files, engine.Options{
		Patterns: queryTrees,
		Lang:     lang,
		Unique:   unique,
		Limit:    limit,
		OnFileDone: func() {
			if bar != nil {
				bar.Add(1)
			}
		},
	})
	if bar != nil {
		fmt.Println()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	presentOpts := present.Options{Before: beforeLines, After: afterLines, Color: forceColor}
	totalMatches := 0
	filesMatched := 0
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("skipping file", zap.String("file", r.File), zap.Error(r.Err))
			continue
		}
		if len(r.Tuples) == 0 {
			continue
		}
		filesMatched++
		totalMatches += len(r.Tuples)

		source, err := os.ReadFile(r.File)
		if err != nil {
			logger.Warn("could not re-read file for display", zap.String("file", r.File), zap.Error(err))
			continue
		}
		fmt.Print(present.Render(r.File, source, flattenTuples(r.Tuples), presentOpts))
	}

	if len(files) > 1 {
		fmt.Fprint(os.Stderr, present.Summary(len(files), filesMatched, totalMatches, forceColor))
	}

	// spec.md §6: zero matches on a valid pattern is still exit 0.
	return 0
}

// flattenTuples turns each surviving composed tuple back into the flat
// []types.QueryResult shape present.Render consumes: one printed
// window per pattern's contribution to the tuple.
func flattenTuples(tuples []compose.Tuple) []types.QueryResult {
	var out []types.QueryResult
	for _, t := range tuples {
		out = append(out, t.Results...)
	}
	return out
}

func parseRegexFlags(flags []string) (map[string]query.RegexConstraint, error) {
	out := make(map[string]query.RegexConstraint, len(flags))
	for _, f := range flags {
		name, pattern, negative, err := splitRegexFlag(f)
		if err != nil {
			return nil, err
		}
		rc, err := query.NewRegexConstraint(pattern, negative)
		if err != nil {
			return nil, err
		}
		out[name] = rc
	}
	return out, nil
}

func splitRegexFlag(f string) (name, patt string, negative bool, err error) {
	if idx := strings.Index(f, "!="); idx >= 0 {
		return f[:idx], f[idx+2:], true, nil
	}
	if idx := strings.Index(f, "="); idx >= 0 {
		return f[:idx], f[idx+1:], false, nil
	}
	return "", "", false, errs.New(errs.RegexCompile, "malformed -R flag, want v=re or v!=re: "+f, nil)
}

func buildQueries(patterns []string, lang sitter.Language, force bool, regex map[string]query.RegexConstraint) ([]*query.QueryTree, error) {
	var trees []*query.QueryTree
	var lastErr error
	for _, p := range patterns {
		cursor, err := pattern.Normalize(p, lang, force)
		if err != nil {
			lastErr = err
			if !force {
				continue
			}
		}
		if cursor == nil {
			continue
		}
		qt, err := query.Build(cursor, query.BuildOptions{Regex: regex})
		cursor.Close()
		if err != nil {
			lastErr = err
			continue
		}
		trees = append(trees, qt)
	}
	return trees, lastErr
}
