package connect

import (
	"strings"

	"github.com/coreconnect/connect/codec"
	"github.com/coreconnect/connect/internal/transport"
)

// NetworkProtocol selects which of the three wire protocols a
// ProtocolClient speaks. Exactly one protocol interceptor is installed
// based on this field.
type NetworkProtocol uint8

const (
	NetworkProtocolConnect NetworkProtocol = iota
	NetworkProtocolGRPC
	NetworkProtocolGRPCWeb
)

// GetConfiguration controls whether idempotent unary Connect calls are
// encoded as HTTP GET requests.
type GetConfiguration uint8

const (
	// GetConfigurationDisabled never uses GET.
	GetConfigurationDisabled GetConfiguration = iota
	// GetConfigurationEnabledIfIdempotent uses GET only for methods marked
	// MethodSpec.Idempotent.
	GetConfigurationEnabledIfIdempotent
	// GetConfigurationAlways uses GET for every unary Connect call,
	// regardless of MethodSpec.Idempotent.
	GetConfigurationAlways
)

// RequestCompressionConfig configures when outgoing messages are
// compressed.
type RequestCompressionConfig struct {
	MinBytes int
	Pool     *CompressionPool
}

// ProtocolClientConfig is the immutable configuration a ProtocolClient is
// built from. Build one with NewProtocolClientConfig and functional
// ClientOptions.
type ProtocolClientConfig struct {
	Host               string
	Codec              codec.Codec
	NetworkProtocol    NetworkProtocol
	RequestCompression *RequestCompressionConfig
	CompressionPools   []*CompressionPool
	GetConfiguration   GetConfiguration
	Interceptors       []Interceptor
	Doer               transport.Doer
}

// ClientOption configures a ProtocolClientConfig.
type ClientOption func(*ProtocolClientConfig)

// NewProtocolClientConfig builds a ProtocolClientConfig for host using
// protocol, applying opts in order. The default Codec is binary protobuf,
// the default compression set is [gzip], and GET encoding is
// disabled unless WithGetConfiguration is supplied.
func NewProtocolClientConfig(host string, protocol NetworkProtocol, opts ...ClientOption) *ProtocolClientConfig {
	cfg := &ProtocolClientConfig{
		Host:             strings.TrimRight(host, "/"),
		Codec:            codec.Proto{},
		NetworkProtocol:  protocol,
		CompressionPools: []*CompressionPool{NewGzipCompressionPool()},
		GetConfiguration: GetConfigurationDisabled,
		Doer:             transport.NewDefault(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithCodec overrides the default protobuf codec.
func WithCodec(c codec.Codec) ClientOption {
	return func(cfg *ProtocolClientConfig) { cfg.Codec = c }
}

// WithCompressionPools overrides the default [gzip] compression set. The
// first pool in the list is preferred when multiple are mutually
// acceptable.
func WithCompressionPools(pools ...*CompressionPool) ClientOption {
	return func(cfg *ProtocolClientConfig) { cfg.CompressionPools = pools }
}

// WithRequestCompression enables compressing outgoing messages of at least
// minBytes using pool.
func WithRequestCompression(pool *CompressionPool, minBytes int) ClientOption {
	return func(cfg *ProtocolClientConfig) {
		cfg.RequestCompression = &RequestCompressionConfig{MinBytes: minBytes, Pool: pool}
	}
}

// WithGetConfiguration controls HTTP GET encoding for idempotent Connect
// unary calls.
func WithGetConfiguration(get GetConfiguration) ClientOption {
	return func(cfg *ProtocolClientConfig) { cfg.GetConfiguration = get }
}

// WithInterceptors appends user interceptors. They run, in the order given,
// outermost-first; the protocol interceptor is always installed last
// (nearest the transport), after every user interceptor.
func WithInterceptors(interceptors ...Interceptor) ClientOption {
	return func(cfg *ProtocolClientConfig) {
		cfg.Interceptors = append(cfg.Interceptors, interceptors...)
	}
}

// WithDoer overrides the default HTTP/2-capable transport.
func WithDoer(doer transport.Doer) ClientOption {
	return func(cfg *ProtocolClientConfig) { cfg.Doer = doer }
}

// compressionRegistry builds the client-scoped registry for this config.
func (cfg *ProtocolClientConfig) compressionRegistry() *compressionPoolRegistry {
	return newCompressionPoolRegistry(cfg.CompressionPools)
}
