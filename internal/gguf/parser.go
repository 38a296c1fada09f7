package gguf

import (
	"fmt"
	"log/slog"
	"math/bits"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/ggufrt/internal/errdefs"
)

// Format errors reported while parsing.
var (
	ErrInvalidMagic       = errdefs.Sentinel(errdefs.ErrFormat, "invalid magic")
	ErrUnsupportedVersion = errdefs.Sentinel(errdefs.ErrFormat, "unsupported version")
	ErrUnknownValueType   = errdefs.Sentinel(errdefs.ErrFormat, "unknown value type")
	ErrInvalidUTF8        = errdefs.Sentinel(errdefs.ErrFormat, "invalid utf-8 string")
	ErrDuplicateKey       = errdefs.Sentinel(errdefs.ErrFormat, "duplicate metadata key")
	ErrDuplicateTensor    = errdefs.Sentinel(errdefs.ErrFormat, "duplicate tensor name")
	ErrTooManyDims        = errdefs.Sentinel(errdefs.ErrFormat, "too many dimensions")
	ErrBadAlignment       = errdefs.Sentinel(errdefs.ErrFormat, "invalid alignment")
	ErrElementOverflow    = errdefs.Sentinel(errdefs.ErrFormat, "element count overflows uint64")
)

// Parse reads the header, the metadata and the tensor directory from r.
//
// On success r is positioned at the end of the directory. Nothing is returned
// for a truncated or malformed container.
func Parse(r *Reader) (*File, error) {
	p := &parser{r: r}
	return p.parse()
}

// ParseFile parses the header, metadata and directory of the file at path.
//
//nolint:gosec // G304: path is supplied by the caller.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IO("open", errdefs.NoOffset, 0, err)
	}
	defer func() {
		_ = f.Close() // Read-only file.
	}()

	r, err := NewReader(f, DefaultBufferSize)
	if err != nil {
		return nil, err
	}

	file, err := Parse(r)
	if err != nil {
		return nil, err
	}
	file.FilePath = path
	file.FileSize = r.Size()
	return file, nil
}

type parser struct {
	r *Reader
}

func (p *parser) parse() (*File, error) {
	file := &File{
		Metadata:  orderedmap.New[string, Value](),
		Alignment: DefaultAlignment,
		index:     make(map[string]int),
	}

	if err := p.parseHeader(&file.Header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	for i := uint64(0); i < file.Header.MetadataCount; i++ {
		key, value, err := p.parseMetadataKV()
		if err != nil {
			return nil, fmt.Errorf("parse metadata kv %d: %w", i, err)
		}
		if _, dup := file.Metadata.Get(key); dup {
			return nil, fmt.Errorf("parse metadata kv %d: %q: %w", i, key, ErrDuplicateKey)
		}
		file.Metadata.Set(key, value)

		if key == KeyAlignment {
			align, ok := value.Uint()
			if !ok || align == 0 || align > MaxAlignment || align&(align-1) != 0 {
				return nil, fmt.Errorf("%s = %s: %w", KeyAlignment, value, ErrBadAlignment)
			}
			file.Alignment = align
		}
	}

	if err := p.r.checkLen("parse tensor info", file.Header.TensorCount, 8+4+4+8); err != nil {
		return nil, err
	}
	file.Tensors = make([]TensorInfo, file.Header.TensorCount)
	for i := range file.Tensors {
		if err := p.parseTensorInfo(&file.Tensors[i]); err != nil {
			return nil, fmt.Errorf("parse tensor info %d: %w", i, err)
		}
		name := file.Tensors[i].Name
		if _, dup := file.index[name]; dup {
			return nil, fmt.Errorf("parse tensor info %d: %q: %w", i, name, ErrDuplicateTensor)
		}
		file.index[name] = i
	}

	file.DataOffset = alignOffset(p.r.Position(), file.Alignment)

	slog.Debug("parsed gguf directory",
		"version", file.Header.Version,
		"metadata", file.Metadata.Len(),
		"tensors", len(file.Tensors),
		"data_offset", file.DataOffset)

	return file, nil
}

func (p *parser) parseHeader(h *Header) error {
	var magic [4]byte
	if err := p.r.ReadFull(magic[:]); err != nil {
		return err
	}
	if string(magic[:]) != Magic {
		return fmt.Errorf("got %q: %w", magic[:], ErrInvalidMagic)
	}

	var err error
	if h.Version, err = p.r.Uint32(); err != nil {
		return err
	}
	if h.Version != Version2 && h.Version != Version3 {
		return fmt.Errorf("version %d (supported: 2-3): %w", h.Version, ErrUnsupportedVersion)
	}

	if h.TensorCount, err = p.r.Uint64(); err != nil {
		return err
	}
	if h.MetadataCount, err = p.r.Uint64(); err != nil {
		return err
	}
	return nil
}

func (p *parser) parseMetadataKV() (string, Value, error) {
	key, err := p.r.Str()
	if err != nil {
		return "", Value{}, fmt.Errorf("read key: %w", err)
	}

	code, err := p.r.Uint32()
	if err != nil {
		return "", Value{}, fmt.Errorf("%q: read value type: %w", key, err)
	}

	value, err := p.r.Value(ValueType(code))
	if err != nil {
		return "", Value{}, fmt.Errorf("%q: %w", key, err)
	}
	return key, value, nil
}

func (p *parser) parseTensorInfo(t *TensorInfo) error {
	var err error
	if t.Name, err = p.r.Str(); err != nil {
		return fmt.Errorf("read name: %w", err)
	}

	ndims, err := p.r.Uint32()
	if err != nil {
		return fmt.Errorf("%q: read ndims: %w", t.Name, err)
	}
	if ndims > MaxDims {
		return fmt.Errorf("%q: %d dims: %w", t.Name, ndims, ErrTooManyDims)
	}

	t.Dimensions = make([]uint64, ndims)
	n := uint64(1)
	for i := range t.Dimensions {
		if t.Dimensions[i], err = p.r.Uint64(); err != nil {
			return fmt.Errorf("%q: read dim %d: %w", t.Name, i, err)
		}
		hi, lo := bits.Mul64(n, t.Dimensions[i])
		if hi != 0 {
			return fmt.Errorf("%q: dims %v: %w", t.Name, t.Dimensions[:i+1], ErrElementOverflow)
		}
		n = lo
	}

	kind, err := p.r.Uint32()
	if err != nil {
		return fmt.Errorf("%q: read kind: %w", t.Name, err)
	}
	t.Kind = Kind(kind)

	if t.Offset, err = p.r.Uint64(); err != nil {
		return fmt.Errorf("%q: read offset: %w", t.Name, err)
	}
	return nil
}
