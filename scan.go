package jpeg2bmp

// mcu is a Minimum Coded Unit covering an 8x8 pixel block. The three arrays
// hold one 64-coefficient block per component and are reused in place by
// every pipeline stage: y/cb/cr coefficients through the inverse DCT, then
// r/g/b samples after color conversion. Grayscale images populate only y.
type mcu struct {
	y, cb, cr [64]int32
}

// decodeBlockComponent entropy-decodes one 8x8 block of one component: the
// differential DC coefficient followed by run-length coded AC coefficients
// in zigzag order. Coefficients are stored at their spatial positions.
func (d *decoder) decodeBlockComponent(b *bitReader, blk *[64]int32, c *component) {
	dcVLC := d.vlcTab[c.dcTabSel]
	acVLC := d.vlcTab[4+c.acTabSel]

	*blk = [64]int32{}

	// DC coefficient: the symbol is the magnitude length of the differential.
	length := int(d.nextSymbol(b, dcVLC))
	if length > 11 {
		d.panic(ErrDecode)
	}

	c.dcPred += d.readCoeff(b, length)
	blk[0] = c.dcPred

	// AC coefficients 1..63: each symbol packs a zero-run length and the
	// magnitude length of the next nonzero coefficient.
	coef := 1
	for coef <= 63 {
		symbol := d.nextSymbol(b, acVLC)

		if symbol == 0x00 { // EOB: the rest of the block is zero.
			return
		}

		run := int(symbol >> 4)
		size := int(symbol & 0x0F)

		if size == 0 {
			if symbol != 0xF0 { // ZRL is the only zero-size symbol besides EOB.
				d.panic(ErrDecode)
			}

			coef += 16

			continue
		}

		if size > 10 {
			d.panic(ErrDecode)
		}

		coef += run
		if coef > 63 {
			d.panic(ErrDecode) // Zero run exceeded the block.
		}

		blk[zz[coef]] = d.readCoeff(b, size)
		coef++
	}
}

// decodeHuffmanData is the entropy decode stage. It allocates the MCU array,
// builds the Huffman lookup tables referenced by the scan, and fills every
// block of every component in scan order, resynchronizing at restart
// intervals.
func (d *decoder) decodeHuffmanData() (mcus []mcu, err error) {
	// Recover panics from the hot path (nextSymbol, readCoeff).
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				mcus, err = nil, de.error
			} else {
				panic(r)
			}
		}
	}()

	mcuWidth := (d.width + 7) / 8
	mcuHeight := (d.height + 7) / 8

	if mcuWidth*mcuHeight <= 0 {
		return nil, ErrOutOfMemory
	}

	mcus = make([]mcu, mcuWidth*mcuHeight)

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		buildVLC(d.htabDC[c.dcTabSel], d.vlcTab[c.dcTabSel])
		buildVLC(d.htabAC[c.acTabSel], d.vlcTab[4+c.acTabSel])
		c.dcPred = 0
	}

	b := &bitReader{data: d.huffmanData}

	for i := range mcus {
		// Restart markers were stripped during extraction; resynchronize by
		// MCU count alone.
		if d.rstInterval != 0 && i%d.rstInterval == 0 && i > 0 {
			b.align()

			for k := 0; k < d.ncomp; k++ {
				d.comp[k].dcPred = 0
			}
		}

		m := &mcus[i]

		d.decodeBlockComponent(b, &m.y, &d.comp[0])
		if d.ncomp == 3 {
			d.decodeBlockComponent(b, &m.cb, &d.comp[1])
			d.decodeBlockComponent(b, &m.cr, &d.comp[2])
		}
	}

	return mcus, nil
}

// dequantize is the dequantization stage: every coefficient is multiplied
// by its quantization divisor. Quant tables are stored in zigzag order while
// blocks are spatial, so the zigzag permutation is applied in the multiply.
func (d *decoder) dequantize(mcus []mcu) {
	qtY := &d.qtab[d.comp[0].qtSel].table

	if d.ncomp == 1 {
		for i := range mcus {
			dequantizeBlock(&mcus[i].y, qtY)
		}

		return
	}

	qtCb := &d.qtab[d.comp[1].qtSel].table
	qtCr := &d.qtab[d.comp[2].qtSel].table

	for i := range mcus {
		m := &mcus[i]
		dequantizeBlock(&m.y, qtY)
		dequantizeBlock(&m.cb, qtCb)
		dequantizeBlock(&m.cr, qtCr)
	}
}

func dequantizeBlock(blk *[64]int32, qt *[64]uint16) {
	for i := 0; i < 64; i++ {
		blk[zz[i]] *= int32(qt[i])
	}
}
