// Package lazyimg defers decoding of encoded images. A Handle answers
// metadata questions from the format header, only decodes pixels the
// first time they are requested and can drop them again with Release.
package lazyimg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
)

// DefaultLargeThreshold is the side length above which an image is large.
const DefaultLargeThreshold = 2048

// ErrReleased is returned for pixel requests on a released Handle.
var ErrReleased = errors.New("image handle released")

// State is the materialization stage of a Handle. Transitions only move
// forward: Unloaded, MetadataOnly, Loaded, Released.
type State int

const (
	// Unloaded holds only the encoded bytes or the path to them.
	Unloaded State = iota
	// MetadataOnly additionally holds the parsed header.
	MetadataOnly
	// Loaded holds the header and the decoded buffer; the encoded bytes are dropped.
	Loaded
	// Released holds at most the header. Pixels cannot be requested again.
	Released
)

func (s State) String() string {
	switch s {
	case MetadataOnly:
		return "metadata_only"
	case Loaded:
		return "loaded"
	case Released:
		return "released"
	default:
		return "unloaded"
	}
}

// Handle is safe for concurrent use.
type Handle struct {
	name           string
	path           string
	codec          Codec
	largeThreshold int

	mu      sync.Mutex
	state   State
	hasInfo bool
	raw     []byte
	info    pixbuf.Info
	buf     *pixbuf.PixelBuffer
}

// Option configures a Handle.
type Option func(*Handle)

// WithCodec overrides the default ImagingCodec.
func WithCodec(c Codec) Option {
	return func(h *Handle) { h.codec = c }
}

// WithLargeThreshold sets the side length used by IsLarge.
func WithLargeThreshold(px int) Option {
	return func(h *Handle) {
		if px > 0 {
			h.largeThreshold = px
		}
	}
}

// WithName attaches a label, typically the source path.
func WithName(name string) Option {
	return func(h *Handle) { h.name = name }
}

// New wraps encoded bytes without parsing them.
func New(raw []byte, opts ...Option) *Handle {
	h := &Handle{
		codec:          ImagingCodec{AutoOrient: true},
		largeThreshold: DefaultLargeThreshold,
		raw:            raw,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Open returns a Handle backed by the file at path. Nothing beyond a stat
// happens until Info or Buffer is called; Info reads only the header and
// Buffer reads the file once.
func Open(path string, opts ...Option) (*Handle, error) {
	if !IsSupported(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	h := New(nil, append([]Option{WithName(path)}, opts...)...)
	h.path = path
	return h, nil
}

// Name returns the label given with WithName.
func (h *Handle) Name() string { return h.name }

// State returns the current stage.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// HeldBytes reports the encoded and decoded bytes the Handle keeps alive.
func (h *Handle) HeldBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := int64(len(h.raw))
	if h.buf != nil {
		n += h.buf.SizeBytes()
	}
	return n
}

// Info returns the image metadata, parsing the header on first call.
func (h *Handle) Info() (pixbuf.Info, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureMetadata(); err != nil {
		return pixbuf.Info{}, err
	}
	return h.info, nil
}

// IsLarge reports whether either side exceeds the large threshold.
func (h *Handle) IsLarge() (bool, error) {
	info, err := h.Info()
	if err != nil {
		return false, err
	}
	return info.Width > h.largeThreshold || info.Height > h.largeThreshold, nil
}

// Buffer decodes the pixels on first call and returns the cached buffer
// afterwards. Callers must treat the buffer as read-only.
func (h *Handle) Buffer() (*pixbuf.PixelBuffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Loaded:
		return h.buf, nil
	case Released:
		return nil, ErrReleased
	}
	if err := h.ensureMetadata(); err != nil {
		return nil, err
	}
	r, closeFn, err := h.open()
	if err != nil {
		return nil, err
	}
	defer closeFn()
	buf, err := h.codec.Decode(r)
	if err != nil {
		return nil, err
	}
	// Decoded dimensions are authoritative, e.g. after EXIF rotation.
	h.info.Width, h.info.Height, h.info.Model = buf.Width, buf.Height, buf.Model
	h.info.EstimatedBytes = buf.SizeBytes()
	h.buf = buf
	h.raw = nil
	h.state = Loaded
	return buf, nil
}

// Release drops the encoded bytes and the decoded buffer. The header stays
// readable if it was parsed before. Release is idempotent.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.raw = nil
	h.buf = nil
	h.state = Released
}

func (h *Handle) ensureMetadata() error {
	if h.hasInfo {
		return nil
	}
	if h.state == Released {
		return ErrReleased
	}
	r, closeFn, err := h.open()
	if err != nil {
		return err
	}
	defer closeFn()
	info, err := h.codec.DecodeConfig(r)
	if err != nil {
		return err
	}
	h.info = info
	h.hasInfo = true
	h.state = MetadataOnly
	return nil
}

func (h *Handle) open() (io.Reader, func(), error) {
	if h.path == "" {
		if len(h.raw) == 0 {
			return nil, nil, fmt.Errorf("%w: empty image data", pixbuf.ErrInvalidDimensions)
		}
		return bytes.NewReader(h.raw), func() {}, nil
	}
	f, err := os.Open(h.path) //nolint:gosec // G304: reading user-selected image paths is expected
	if err != nil {
		return nil, nil, fmt.Errorf("read image: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
