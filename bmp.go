package jpeg2bmp

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"strings"
)

// BMP output

// bmpHeaderSize is the combined size of the BITMAPFILEHEADER (14 bytes) and
// the BITMAPCOREHEADER (12 bytes); pixel data starts immediately after.
const bmpHeaderSize = 14 + 12

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// EncodeBMP writes img to w as an uncompressed 24-bit BMP with a 12-byte
// BITMAPCOREHEADER. Rows are written bottom to top, pixels as B, G, R, each
// row padded to a multiple of four bytes. The core header stores dimensions
// as 16-bit values, so images beyond 65535 pixels per side are rejected.
func EncodeBMP(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("empty image: %w", ErrUnsupported)
	}
	if width > 65535 || height > 65535 {
		return fmt.Errorf("image %dx%d exceeds BMP core header limits: %w", width, height, ErrUnsupported)
	}

	padding := (4 - (width*3)%4) % 4
	size := bmpHeaderSize + height*(width*3+padding)

	bw := bufio.NewWriter(w)

	var hdr [bmpHeaderSize]byte
	hdr[0] = 'B'
	hdr[1] = 'M'
	putUint32(hdr[2:], uint32(size))
	putUint32(hdr[6:], 0)
	putUint32(hdr[10:], bmpHeaderSize)
	putUint32(hdr[14:], 12)
	putUint16(hdr[18:], uint16(width))
	putUint16(hdr[20:], uint16(height))
	putUint16(hdr[22:], 1)
	putUint16(hdr[24:], 24)

	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	rgba, _ := img.(*image.RGBA)
	row := make([]byte, width*3+padding)

	for y := height - 1; y >= 0; y-- {
		if rgba != nil {
			src := rgba.Pix[rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := 0; x < width; x++ {
				off := x * 4
				row[x*3+0] = src[off+2] // B
				row[x*3+1] = src[off+1] // G
				row[x*3+2] = src[off+0] // R
			}
		} else {
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				row[x*3+0] = byte(b >> 8)
				row[x*3+1] = byte(g >> 8)
				row[x*3+2] = byte(r >> 8)
			}
		}

		for x := width * 3; x < len(row); x++ {
			row[x] = 0
		}

		if _, err := bw.Write(row); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// OutputPath derives the BMP output path for a JPEG input path by replacing
// the final dot suffix with ".bmp", or appending ".bmp" if there is none.
func OutputPath(in string) string {
	if i := strings.LastIndexByte(in, '.'); i >= 0 {
		return in[:i] + ".bmp"
	}

	return in + ".bmp"
}
