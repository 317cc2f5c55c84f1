// Package jpeg2bmp decodes baseline sequential JPEG images (8-bit,
// non-subsampled grayscale or YCbCr) and writes 24-bit uncompressed BMP
// files. Progressive, hierarchical and arithmetic-coded streams, subsampled
// chroma and CMYK/YCCK color are not supported and are rejected with
// ErrUnsupported.
package jpeg2bmp

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
)

// Standard error types for JPEG decoding.
var (
	ErrNoJPEG      = errors.New("not a JPEG file")
	ErrSyntax      = errors.New("syntax error")
	ErrUnsupported = errors.New("unsupported format")
	ErrDecode      = errors.New("decode error")
	ErrOutOfMemory = errors.New("out of memory")
)

// A reasonable upper limit for the size of JPEG headers.
// Most headers are well under this size (64KB).
const maxHeaderSize = 65536

// A pool for header-sized buffers to reduce allocations in DecodeConfig.
var headerBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, maxHeaderSize)

		return &b
	},
}

// decoderPool is a pool of decoder structs to reduce allocation overhead.
// The pooled decoders keep their Huffman lookup tables allocated across uses.
var decoderPool = sync.Pool{
	New: func() interface{} {
		return newDecoder()
	},
}

// slurp brings the whole JPEG stream into memory. The marker parser and the
// entropy payload extraction index the buffer directly, so nothing can start
// until the file is fully read. Readers that report their remaining length
// (bytes.Reader and friends) get one exact-sized allocation; anything else
// goes through io.ReadAll.
func slurp(r io.Reader) ([]byte, error) {
	rl, ok := r.(interface{ Len() int })
	if !ok || rl.Len() <= 0 {
		return io.ReadAll(r)
	}

	data := make([]byte, rl.Len())
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	return data, nil
}

// Decode reads a baseline JPEG image from r and returns it as an
// *image.RGBA. Grayscale sources decode with R = G = B.
func Decode(r io.Reader) (image.Image, error) {
	data, err := slurp(r)
	if err != nil {
		return nil, err
	}

	// Get a decoder from the pool.
	d := decoderPool.Get().(*decoder)
	// Ensure the decoder is reset and returned to the pool when finished.
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	return d.decode(data, false)
}

// DecodeConfig returns the color model and dimensions of a JPEG image
// without decoding the entire image data. The dimensions returned are as
// stored in the file (SOF marker).
func DecodeConfig(r io.Reader) (image.Config, error) {
	// Get a buffer from the pool to avoid allocating a large slice on every call.
	bufPtr := headerBufferPool.Get().(*[]byte)
	defer headerBufferPool.Put(bufPtr)
	headerData := *bufPtr

	// Read the start of the file into the pooled buffer. We expect an
	// io.ErrUnexpectedEOF if the file is smaller than our buffer, which is normal.
	n, err := io.ReadFull(r, headerData)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		// A read error or an empty file (n=0, err=io.EOF) is fatal.
		return image.Config{}, err
	}

	if n == 0 {
		return image.Config{}, ErrNoJPEG
	}

	// Use a decoder from our pool.
	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	if _, err := d.decode(headerData[:n], true); err != nil {
		return image.Config{}, err
	}

	return image.Config{
		ColorModel: color.RGBAModel,
		Width:      d.width,
		Height:     d.height,
	}, nil
}

// Convert decodes a baseline JPEG from r and writes the result as an
// uncompressed 24-bit BMP to w.
func Convert(r io.Reader, w io.Writer) error {
	img, err := Decode(r)
	if err != nil {
		return err
	}

	return EncodeBMP(w, img)
}

// init registers the JPEG format with the standard library's image package.
// This allows image.Decode to automatically recognize and decode JPEG files using this package.
func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", Decode, DecodeConfig)
}
