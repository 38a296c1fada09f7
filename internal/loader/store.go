package loader

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/born-ml/ggufrt/internal/envconfig"
	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/gguf"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	bufSize int
	logger  *slog.Logger
}

// WithBufferSize sets the read-ahead buffer size of the underlying reader.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufSize = n }
}

// WithLogger sets the logger used for load progress.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Store owns one open container and the cache of tensors decoded from it.
type Store struct {
	file   *gguf.File
	r      *gguf.Reader
	closer io.Closer
	cache  map[string]*gguf.Tensor
	log    *slog.Logger
}

// Open opens the container at path and parses its directory.
//
//nolint:gosec // G304: path is supplied by the caller.
func Open(path string, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IO("open", errdefs.NoOffset, 0, err)
	}

	s, err := New(f, opts...)
	if err != nil {
		_ = f.Close() // Best effort close on error.
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.closer = f
	s.file.FilePath = path
	s.file.FileSize = s.r.Size()
	return s, nil
}

// New parses the directory of the container read from rs.
// The Store does not close rs.
func New(rs io.ReadSeeker, opts ...Option) (*Store, error) {
	o := options{bufSize: envconfig.ReadBuffer(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	r, err := gguf.NewReader(rs, o.bufSize)
	if err != nil {
		return nil, err
	}
	file, err := gguf.Parse(r)
	if err != nil {
		return nil, err
	}

	return &Store{
		file:  file,
		r:     r,
		cache: make(map[string]*gguf.Tensor),
		log:   o.logger,
	}, nil
}

// Close releases the underlying file if the Store opened it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// File returns the parsed header, metadata and directory.
func (s *Store) File() *gguf.File {
	return s.file
}

// Directory returns the tensor descriptors in file order.
func (s *Store) Directory() []gguf.TensorInfo {
	return s.file.Tensors
}

// NumTensors returns the number of tensors in the directory.
func (s *Store) NumTensors() int {
	return len(s.file.Tensors)
}

// Len returns the number of decoded tensors in the cache.
func (s *Store) Len() int {
	return len(s.cache)
}

// Metadata returns the value stored under key.
func (s *Store) Metadata(key string) (gguf.Value, bool) {
	return s.file.Lookup(key)
}

// MetadataKeys returns the metadata keys in file order.
func (s *Store) MetadataKeys() []string {
	return s.file.Keys()
}

// Get returns a cached tensor. It never decodes.
func (s *Store) Get(name string) (*gguf.Tensor, bool) {
	t, ok := s.cache[name]
	return t, ok
}

// LoadAll decodes every tensor that is not cached yet, in directory order.
//
// It stops at the first failure and reports the 1-based position, name,
// offset and kind of the failing tensor. Tensors decoded before the failure
// stay cached.
func (s *Store) LoadAll() error {
	start := time.Now()
	total := len(s.file.Tensors)
	decoded := 0
	for i, info := range s.file.Tensors {
		if _, ok := s.cache[info.Name]; ok {
			continue
		}
		if _, err := s.decode(info); err != nil {
			s.log.Warn("tensor load failed", "index", i+1, "total", total, "name", info.Name, "error", err)
			return fmt.Errorf("load tensor %d/%d %q (offset %d, kind %s): %w",
				i+1, total, info.Name, info.Offset, info.Kind, err)
		}
		decoded++
	}
	s.log.Info("loaded tensors", "decoded", decoded, "cached", len(s.cache), "elapsed", time.Since(start))
	return nil
}

// LoadOne decodes the named tensor unless it is already cached.
//
// If the name is not in the directory, MapName is tried before reporting
// errdefs.ErrNotFound.
func (s *Store) LoadOne(name string) (*gguf.Tensor, error) {
	if t, ok := s.cache[name]; ok {
		return t, nil
	}

	info, ok := s.file.Tensor(name)
	if !ok {
		mapped := MapName(name)
		if info, ok = s.file.Tensor(mapped); !ok {
			return nil, errdefs.NotFound("load tensor", name)
		}
		if t, ok := s.cache[mapped]; ok {
			return t, nil
		}
	}

	t, err := s.decode(info)
	if err != nil {
		return nil, fmt.Errorf("load tensor %q (offset %d, kind %s): %w", info.Name, info.Offset, info.Kind, err)
	}
	return t, nil
}

// Has reports whether the directory holds a tensor named name.
func (s *Store) Has(name string) bool {
	_, ok := s.file.Tensor(name)
	return ok
}

// Suggest returns the directory name closest to name by edit distance.
// It returns "" for an empty directory or when nothing is within half the
// length of name.
func (s *Store) Suggest(name string) string {
	var best string
	score := math.MaxInt
	for _, info := range s.file.Tensors {
		if d := levenshtein.ComputeDistance(name, info.Name); d < score {
			score = d
			best = info.Name
		}
	}
	if score > len(name)/2 {
		return ""
	}
	return best
}

func (s *Store) decode(info gguf.TensorInfo) (*gguf.Tensor, error) {
	pos := s.file.DataOffset + int64(info.Offset) //nolint:gosec // G115: offsets are bounded by the file size.
	if err := s.r.SeekTo(pos); err != nil {
		return nil, err
	}

	t, err := gguf.Decode(s.r, info)
	if err != nil {
		return nil, err
	}

	s.cache[info.Name] = t
	s.log.Debug("loaded tensor", "name", info.Name, "kind", info.Kind, "dims", info.Dimensions, "offset", pos)
	return t, nil
}
