package jpeg2bmp

import "image"

// Color conversion and image assembly

// ycbcrToRGB converts one pixel from YCbCr to RGB. Inputs are centered at
// zero; the +128 level shift deferred by the inverse DCT is applied here.
// The results are not clamped; callers clip each channel to [0, 255].
func ycbcrToRGB(y, cb, cr int32) (r, g, b int32) {
	yf, cbf, crf := float64(y), float64(cb), float64(cr)

	r = int32(yf + 1.402*crf + 128)
	g = int32((yf-0.114*(yf+1.772*cbf)-0.299*(yf+1.402*crf))/0.587 + 128)
	b = int32(yf + 1.772*cbf + 128)

	return r, g, b
}

// toRGB is the color conversion stage. It rewrites every MCU in place: the
// y/cb/cr arrays hold r/g/b samples afterwards. Grayscale images replicate
// the level-shifted luma into all three channels.
func (d *decoder) toRGB(mcus []mcu) {
	if d.ncomp == 1 {
		for i := range mcus {
			m := &mcus[i]

			for j := 0; j < 64; j++ {
				v := int32(clip(m.y[j] + 128))
				m.y[j] = v
				m.cb[j] = v
				m.cr[j] = v
			}
		}

		return
	}

	for i := range mcus {
		m := &mcus[i]

		for j := 0; j < 64; j++ {
			r, g, b := ycbcrToRGB(m.y[j], m.cb[j], m.cr[j])

			m.y[j] = int32(clip(r))
			m.cb[j] = int32(clip(g))
			m.cr[j] = int32(clip(b))
		}
	}
}

// assemble copies the converted MCU array into an RGBA image, discarding
// the padding of blocks that extend past the right and bottom edges.
func (d *decoder) assemble(mcus []mcu) *image.RGBA {
	mcuWidth := (d.width + 7) / 8

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))

	for y := 0; y < d.height; y++ {
		mcuRow := y / 8
		pixelRow := y % 8
		rowOffset := y * img.Stride

		for x := 0; x < d.width; x++ {
			m := &mcus[mcuRow*mcuWidth+x/8]
			pixelIndex := pixelRow*8 + x%8

			off := rowOffset + x*4
			img.Pix[off+0] = byte(m.y[pixelIndex])
			img.Pix[off+1] = byte(m.cb[pixelIndex])
			img.Pix[off+2] = byte(m.cr[pixelIndex])
			img.Pix[off+3] = 255
		}
	}

	return img
}
