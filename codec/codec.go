// Package codec provides the (de)serialization strategies the engine's
// protocol interceptors marshal and unmarshal messages through. A protocol
// engine that can't serialize anything isn't runnable, so this module ships
// the two codecs a connect-shaped client needs: binary protobuf and JSON.
package codec

// Codec binds a wire encoding name to marshal/unmarshal functions for
// protobuf messages. The engine never depends on a specific codec
// implementation directly — only on this interface — so a generated client
// can be told to use JSON for debugging without touching engine code.
type Codec interface {
	// Name is the wire encoding token used in Content-Type, e.g. "proto" or
	// "json".
	Name() string
	// Marshal serializes msg.
	Marshal(msg any) ([]byte, error)
	// MarshalAppend serializes msg onto the end of base, returning the
	// extended slice. Implementations that can't append efficiently may
	// fall back to Marshal and a plain append.
	MarshalAppend(base []byte, msg any) ([]byte, error)
	// Unmarshal deserializes data into msg.
	Unmarshal(data []byte, msg any) error
	// IsBinary reports whether this codec's output should never be treated
	// as printable text (used by the Connect unary GET-encoding path, which
	// base64-encodes binary codecs but may pass JSON through as-is).
	IsBinary() bool
}

// StableCodec additionally supports deterministic serialization, required
// for request signing, caching, or any other byte-stable Use. Not every
// codec can offer this (streaming JSON codecs over unordered maps,
// notably), so it's a separate, optional interface.
type StableCodec interface {
	Codec
	MarshalStable(msg any) ([]byte, error)
}
