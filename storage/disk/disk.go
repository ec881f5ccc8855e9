// Package disk provides a storage backend that persists artifacts as files
// under a sharded directory tree.
//
// The default layout is <dir>/<fp[:2]>/<fp><suffix>. There is no index: the
// directory tree itself is the index, so a backend reopened on the same
// directory sees every artifact committed before.
package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/cachemir/fingerprint"
	"github.com/meigma/cachemir/storage"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	defaultFilePerm       = 0o600

	tempPattern = ".tmp-*"
	tempPrefix  = ".tmp-"
)

// PathFunc maps a fingerprint to the file that holds its artifact.
type PathFunc func(dir string, fp fingerprint.Fingerprint) string

// Backend implements storage.Backend using the local filesystem.
// It is safe for concurrent use.
type Backend struct {
	dir            string      // root directory for artifacts
	shardPrefixLen int         // number of fingerprint chars used for subdirectory sharding
	suffix         string      // appended to every artifact file name
	dirPerm        os.FileMode // permissions for created directories
	filePerm       os.FileMode // permissions for committed artifacts
	pathFunc       PathFunc    // overrides the default layout when set
	logger         *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// Option configures a disk backend.
type Option func(*Backend)

// WithShardPrefixLen sets the number of fingerprint characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(b *Backend) {
		b.shardPrefixLen = n
	}
}

// WithSuffix appends suffix (for example ".pdf") to every artifact file name.
func WithSuffix(suffix string) Option {
	return func(b *Backend) {
		b.suffix = suffix
	}
}

// WithDirPerm sets the permissions used for created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(b *Backend) {
		b.dirPerm = mode
	}
}

// WithFilePerm sets the permissions of committed artifact files.
func WithFilePerm(mode os.FileMode) Option {
	return func(b *Backend) {
		b.filePerm = mode
	}
}

// WithPathFunc replaces the default layout. fn must return a path inside dir
// and must be deterministic; the shard directory is whatever directory the
// returned path lives in.
func WithPathFunc(fn PathFunc) Option {
	return func(b *Backend) {
		b.pathFunc = fn
	}
}

// WithLogger sets a logger for commit and discard events.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a disk backend rooted at dir, creating dir if needed.
// An empty dir creates a fresh temporary directory; see Dir.
func New(dir string, opts ...Option) (*Backend, error) {
	b := &Backend{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		filePerm:       defaultFilePerm,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(b)
	}
	if b.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if strings.ContainsAny(b.suffix, `/\`) {
		return nil, fmt.Errorf("suffix %q contains a path separator", b.suffix)
	}
	if b.dir == "" {
		tmp, err := os.MkdirTemp("", "cachemir-")
		if err != nil {
			return nil, fmt.Errorf("create temporary cache dir: %w", err)
		}
		b.dir = tmp
	}
	if err := os.MkdirAll(b.dir, b.dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return b, nil
}

// Dir returns the root directory.
func (b *Backend) Dir() string {
	return b.dir
}

// Path returns the file that holds (or will hold) the artifact for fp.
func (b *Backend) Path(fp fingerprint.Fingerprint) (string, error) {
	if err := validate(fp); err != nil {
		return "", err
	}
	if b.pathFunc != nil {
		return b.pathFunc(b.dir, fp), nil
	}
	name := string(fp) + b.suffix
	if b.shardPrefixLen <= 0 {
		return filepath.Join(b.dir, name), nil
	}
	prefixLen := min(b.shardPrefixLen, len(fp))
	return filepath.Join(b.dir, string(fp[:prefixLen]), name), nil
}

// Has reports whether the artifact file exists.
func (b *Backend) Has(fp fingerprint.Fingerprint) bool {
	path, err := b.Path(fp)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Open opens the artifact file for reading.
func (b *Backend) Open(fp fingerprint.Fingerprint) (io.ReadCloser, error) {
	path, err := b.Path(fp)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from the fingerprint, not user input
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, err
	}
	return f, nil
}

// Writer stages the artifact in a temporary file next to its final path.
// Close renames the temporary file into place.
func (b *Backend) Writer(fp fingerprint.Fingerprint) (storage.Writer, error) {
	path, err := b.Path(fp)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	// MkdirAll tolerates a concurrent writer creating the same shard.
	if err := os.MkdirAll(dir, b.dirPerm); err != nil {
		return nil, fmt.Errorf("create shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &diskWriter{
		file:      tmp,
		tmpPath:   tmp.Name(),
		finalPath: path,
		filePerm:  b.filePerm,
		logger:    b.log(),
	}, nil
}

// SizeBytes returns the total size of committed artifacts.
func (b *Backend) SizeBytes() (int64, error) {
	return dirSize(b.dir)
}

func (b *Backend) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

func validate(fp fingerprint.Fingerprint) error {
	switch {
	case fp == "":
		return fmt.Errorf("%w: empty", storage.ErrInvalidFingerprint)
	case strings.HasPrefix(string(fp), "."):
		return fmt.Errorf("%w: leading dot in %q", storage.ErrInvalidFingerprint, fp)
	case strings.ContainsAny(string(fp), `/\`) || strings.ContainsRune(string(fp), 0):
		return fmt.Errorf("%w: %q is not a valid file name", storage.ErrInvalidFingerprint, fp)
	}
	return nil
}

type diskWriter struct {
	file      *os.File
	tmpPath   string
	finalPath string
	filePerm  os.FileMode
	logger    *slog.Logger
	done      bool
}

func (w *diskWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storage.ErrClosed
	}
	return w.file.Write(p)
}

func (w *diskWriter) Close() error {
	if w.done {
		return storage.ErrClosed
	}
	w.done = true

	if err := w.commit(); err != nil {
		_ = os.Remove(w.tmpPath)
		return err
	}
	w.logger.Debug("artifact committed", slog.String("path", w.finalPath))
	return nil
}

func (w *diskWriter) commit() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if w.filePerm != defaultFilePerm {
		if err := os.Chmod(w.tmpPath, w.filePerm); err != nil {
			return err
		}
	}
	return os.Rename(w.tmpPath, w.finalPath)
}

func (w *diskWriter) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.file.Close()
	w.logger.Debug("artifact discarded", slog.String("path", w.finalPath))
	return os.Remove(w.tmpPath)
}
