// Package scanner is the source-file provider of spec.md §6: it
// yields the path and size of each file to search under a search
// root, either by walking
// a directory for files of the configured extensions or by reading a
// newline-delimited path list from standard input when the root is
// "-".
package scanner

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dlclark/regexp2"

	"github.com/cqlang/cq/internal/errs"
)

// FileInfo is one file the scanner selected for searching.
type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks a root directory (or reads stdin) and yields the files
// matching the configured extensions and include/exclude filters.
type Scanner struct {
	rootDir    string
	extensions []string
	include    *regexp2.Regexp
	exclude    *regexp2.Regexp
}

// Option configures a Scanner beyond its extension list.
type Option func(*Scanner)

// WithInclude only yields paths matching re (spec.md §6, "--include").
func WithInclude(re *regexp2.Regexp) Option {
	return func(s *Scanner) { s.include = re }
}

// WithExclude drops paths matching re (spec.md §6, "--exclude").
func WithExclude(re *regexp2.Regexp) Option {
	return func(s *Scanner) { s.exclude = re }
}

// New builds a Scanner rooted at rootDir, restricted to the given
// extensions (no filter when extensions is empty).
func New(rootDir string, extensions []string, opts ...Option) *Scanner {
	s := &Scanner{rootDir: rootDir, extensions: extensions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks rootDir and returns every selected file. When rootDir is
// "-", it instead reads a newline-delimited path list from stdin (spec.md
// §6, "a newline-delimited path list on standard input").
func (s *Scanner) Scan(stdin io.Reader) ([]FileInfo, error) {
	if s.rootDir == "-" {
		return s.scanStdin(stdin)
	}

	var (
		files []FileInfo
		mutex sync.Mutex
		wg    sync.WaitGroup
	)

	err := filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !s.isTargetFile(path) {
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fi := FileInfo{Path: path, Size: info.Size()}
			mutex.Lock()
			files = append(files, fi)
			mutex.Unlock()
		}()
		return nil
	})

	wg.Wait()
	if err != nil {
		return nil, errs.New(errs.InputUnreadable, "walk "+s.rootDir, err)
	}
	return files, nil
}

func (s *Scanner) scanStdin(r io.Reader) ([]FileInfo, error) {
	var files []FileInfo
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		path := scan.Text()
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, errs.New(errs.InputUnreadable, "stat "+path, err)
		}
		if !s.passesFilters(path) {
			continue
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
	}
	if err := scan.Err(); err != nil {
		return nil, errs.New(errs.InputUnreadable, "read stdin path list", err)
	}
	return files, nil
}

func (s *Scanner) isTargetFile(path string) bool {
	if len(s.extensions) > 0 {
		ext := filepath.Ext(path)
		found := false
		for _, want := range s.extensions {
			if ext == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return s.passesFilters(path)
}

func (s *Scanner) passesFilters(path string) bool {
	if s.include != nil {
		ok, _ := s.include.MatchString(path)
		if !ok {
			return false
		}
	}
	if s.exclude != nil {
		ok, _ := s.exclude.MatchString(path)
		if ok {
			return false
		}
	}
	return true
}
