// Package compression provides the codecs used for values written to local storage and to the
// object-store backend.
package compression

import "fmt"

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

const (
	Zstd = "zstd"
	Gzip = "gzip"
	None = "none"
)

// New returns the compressor registered under name. An empty name selects zstd.
func New(name string) (Compressor, error) {
	switch name {
	case Zstd, "":
		return ZstdCompressor{}, nil
	case Gzip:
		return GzipCompressor{}, nil
	case None:
		return NopCompressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

type NopCompressor struct{}

func (NopCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (NopCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
