package jpeg2bmp

import "math"

// Inverse Discrete Cosine Transform

// idctMap is the fixed 8x8 basis map M[i][j] = (C(i)/2) * cos((2j+1)*i*pi/16)
// with C(0) = 1/sqrt(2) and C(k) = 1 otherwise. Two 1-D passes against this
// map, columns then rows, form the 2-D inverse transform.
var idctMap = buildIDCTMap()

func buildIDCTMap() [64]float64 {
	var m [64]float64

	for i := 0; i < 8; i++ {
		c := 1.0 / 2.0
		if i == 0 {
			c = 1.0 / math.Sqrt2 / 2.0
		}

		for j := 0; j < 8; j++ {
			m[i*8+j] = c * math.Cos((2.0*float64(j)+1.0)*float64(i)*math.Pi/16.0)
		}
	}

	return m
}

// transformColumn performs a 1-D IDCT on one column of a block, writing the
// intermediate result as float64.
func transformColumn(blk *[64]int32, tmp *[64]float64, col int) {
	for i := 0; i < 8; i++ {
		sum := 0.0
		for j := 0; j < 8; j++ {
			sum += float64(blk[j*8+col]) * idctMap[j*8+i]
		}

		tmp[i*8+col] = sum
	}
}

// transformRow performs a 1-D IDCT on one row of the intermediate block,
// truncating the result toward zero back into the coefficient array.
func transformRow(tmp *[64]float64, blk *[64]int32, row int) {
	for i := 0; i < 8; i++ {
		sum := 0.0
		for j := 0; j < 8; j++ {
			sum += tmp[row*8+j] * idctMap[j*8+i]
		}

		blk[row*8+i] = int32(sum)
	}
}

// idctBlock applies the 2-D inverse transform to one block in place.
// Samples come out centered at zero; the +128 level shift happens during
// color conversion.
func idctBlock(blk *[64]int32) {
	var tmp [64]float64

	for i := 0; i < 8; i++ {
		transformColumn(blk, &tmp, i)
	}

	for i := 0; i < 8; i++ {
		transformRow(&tmp, blk, i)
	}
}

// inverseDCT is the inverse transform stage: every block of every component
// goes from frequency space to spatial samples.
func inverseDCT(mcus []mcu, ncomp int) {
	for i := range mcus {
		m := &mcus[i]

		idctBlock(&m.y)
		if ncomp == 3 {
			idctBlock(&m.cb)
			idctBlock(&m.cr)
		}
	}
}
