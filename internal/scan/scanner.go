package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
)

// DefaultHashLimit is the largest file the scanner will hash.
const DefaultHashLimit = 10 * 1024 * 1024

var ignored = map[string]bool{
	".git":          true,
	".svn":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	"node_modules":  true,
	".DS_Store":     true,
	"Thumbs.db":     true,
}

// IsOutput reports whether name is a file this tool writes into a dataset
// directory: a meta artifact, a backup of one, or an atomic-write temp file.
func IsOutput(name string) bool {
	switch {
	case name == "meta.md", name == "meta.json", name == "meta.yaml":
		return true
	case strings.HasPrefix(name, "meta.") && strings.Contains(name, ".backup"):
		return true
	case strings.HasPrefix(name, ".dsmeta-tmp-"):
		return true
	}
	return false
}

// lineFormats get a line count, used later to estimate record counts.
var lineFormats = map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".jsonl": true}

var namePattern = regexp.MustCompile(`^([^-]+)-(\d{8})-(.+)$`)

// NameInfo is what a dataset folder name says about the dataset.
type NameInfo struct {
	Name    string
	Creator string
	Date    string // YYYY-MM-DD
}

// ParseName splits a "{creator}-{YYYYMMDD}-{name}" folder name. Names that
// do not follow the convention come back as the name with no creator or date.
func ParseName(folder string) NameInfo {
	m := namePattern.FindStringSubmatch(folder)
	if m == nil {
		return NameInfo{Name: folder}
	}
	d := m[2]
	return NameInfo{
		Creator: m[1],
		Date:    d[:4] + "-" + d[4:6] + "-" + d[6:8],
		Name:    m[3],
	}
}

// Result is the outcome of scanning one dataset directory.
type Result struct {
	Files     []dataset.FileStat
	TotalSize int64
}

// Scanner walks dataset directories and collects file statistics.
type Scanner struct {
	log       *zap.Logger
	hashLimit int64
}

// NewScanner returns a Scanner that hashes files up to DefaultHashLimit.
func NewScanner(log *zap.Logger) *Scanner {
	return &Scanner{log: log, hashLimit: DefaultHashLimit}
}

// SetHashLimit overrides the largest file size that gets a sha256. Zero disables hashing.
func (s *Scanner) SetHashLimit(n int64) {
	s.hashLimit = n
}

// Scan walks root recursively. It fails only when root is missing or not a
// directory; unreadable entries are skipped with a warning. An empty
// directory yields an empty, non-nil file list.
func (s *Scanner) Scan(ctx context.Context, root string) (Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, fmt.Errorf("dataset path does not exist: %s", root)
		}
		return Result{}, fmt.Errorf("stat dataset path: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("dataset path is not a directory: %s", root)
	}

	res := Result{Files: []dataset.FileStat{}}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			s.log.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ignored[d.Name()] && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filepath.Dir(path) == filepath.Clean(root) && IsOutput(d.Name()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.log.Warn("failed to stat file", zap.String("path", path), zap.Error(err))
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		stat := dataset.FileStat{
			Path:      filepath.ToSlash(rel),
			SizeBytes: fi.Size(),
			Format:    dataset.NormalizeFormat(filepath.Ext(path)),
		}
		if s.hashLimit > 0 && fi.Size() <= s.hashLimit {
			if sum, err := dataset.HashFile(path); err == nil {
				stat.SHA256 = sum
			} else {
				s.log.Warn("failed to hash file", zap.String("path", path), zap.Error(err))
			}
		}
		if lineFormats[stat.Format] && fi.Size() <= DefaultHashLimit {
			if n, err := countLines(path); err == nil {
				stat.Lines = n
			}
		}
		res.Files = append(res.Files, stat)
		res.TotalSize += stat.SizeBytes
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", root, err)
	}
	return res, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	var n int
	var last byte
	for {
		c, err := f.Read(buf)
		if c > 0 {
			n += bytes.Count(buf[:c], []byte{'\n'})
			last = buf[c-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != 0 && last != '\n' {
		n++
	}
	return n, nil
}
