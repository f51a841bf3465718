package connect

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"
)

// Well-known compression names advertised in Accept-Encoding / Grpc-Encoding
// headers.
const (
	compressionIdentity = "identity"
	compressionGzip     = "gzip"
)

// Compressor is the symmetric encode/decode pair a CompressionPool wraps.
// Implementations must be safe for concurrent use, since a single pool is
// shared by every call made through a client.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressionPool is a named compressor. It carries no size threshold; the
// minimum message size worth compressing is RequestCompressionConfig.MinBytes.
// CompressionPools are stateless and process-lived: once built, the same
// pool is reused across every call.
type CompressionPool struct {
	name       string
	compressor Compressor
}

// NewCompressionPool wraps compressor under the given name.
func NewCompressionPool(name string, compressor Compressor) *CompressionPool {
	return &CompressionPool{name: name, compressor: compressor}
}

// Name returns the wire name advertised in Accept-Encoding / Grpc-Encoding.
func (p *CompressionPool) Name() string {
	return p.name
}

// Compress compresses buf.
func (p *CompressionPool) Compress(buf []byte) ([]byte, error) {
	return p.compressor.Compress(buf)
}

// Decompress decompresses buf.
func (p *CompressionPool) Decompress(buf []byte) ([]byte, error) {
	return p.compressor.Decompress(buf)
}

// gzipCompressor implements Compressor using compress/gzip, recycling
// writers and readers through sync.Pool to keep per-message allocation low.
type gzipCompressor struct {
	writers sync.Pool
	readers sync.Pool
}

func newGzipCompressor() *gzipCompressor {
	g := &gzipCompressor{}
	g.writers.New = func() any {
		return gzip.NewWriter(io.Discard)
	}
	g.readers.New = func() any {
		return new(gzip.Reader)
	}
	return g
}

func (g *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := g.writers.Get().(*gzip.Writer)
	writer.Reset(&buf)
	defer g.writers.Put(writer)

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, ok := g.readers.Get().(*gzip.Reader)
	if !ok || reader == nil {
		reader = new(gzip.Reader)
	}
	defer g.readers.Put(reader)

	if err := reader.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("gzip reset: %w", err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// NewGzipCompressionPool returns a CompressionPool using the standard
// library's compress/gzip.
func NewGzipCompressionPool() *CompressionPool {
	return NewCompressionPool(compressionGzip, newGzipCompressor())
}

// compressionPoolRegistry is a client-scoped, read-only-after-construction
// lookup of the compression pools a ProtocolClientConfig was built with. It
// is never a package-level singleton: two independently configured clients
// in the same process must not be able to clobber each other's
// compressors.
type compressionPoolRegistry struct {
	pools   map[string]*CompressionPool
	ordered []*CompressionPool
}

func newCompressionPoolRegistry(pools []*CompressionPool) *compressionPoolRegistry {
	reg := &compressionPoolRegistry{
		pools:   make(map[string]*CompressionPool, len(pools)),
		ordered: pools,
	}
	for _, pool := range pools {
		reg.pools[pool.Name()] = pool
	}
	return reg
}

// Get returns the pool registered under name, if any.
func (r *compressionPoolRegistry) Get(name string) (*CompressionPool, bool) {
	if r == nil || name == "" || name == compressionIdentity {
		return nil, false
	}
	pool, ok := r.pools[name]
	return pool, ok
}

// Names returns every registered pool's name, in registration order, for
// building Accept-Encoding / Grpc-Accept-Encoding headers.
func (r *compressionPoolRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.ordered))
	for i, pool := range r.ordered {
		names[i] = pool.Name()
	}
	return names
}
