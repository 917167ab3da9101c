package algo

// Compression transforms packet payloads before framing.
type Compression interface {
	Compress(payload []byte) []byte
	Decompress(payload []byte) ([]byte, error)
}

// NoCompression is the "none" algorithm.
type NoCompression struct{}

func (NoCompression) Compress(p []byte) []byte            { return p }
func (NoCompression) Decompress(p []byte) ([]byte, error) { return p, nil }
