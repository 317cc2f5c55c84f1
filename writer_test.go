package jpeg2bmp

import "math/bits"

// Test-only baseline JPEG emitter. It writes single-table grayscale or
// 4:4:4 color files from per-MCU coefficient blocks given in zigzag order,
// using the standard luminance Huffman tables and an all-ones quantization
// table, with optional restart intervals. Byte stuffing is applied exactly
// as a real encoder would.

// Standard luminance Huffman table definitions (counts per code length
// 1..16 followed by the symbol list), as found in Annex K of the standard.
var stdDCCounts = []byte{0x00, 0x01, 0x05, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

var stdDCSymbols = []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b}

var stdACCounts = []byte{0x00, 0x02, 0x01, 0x03, 0x03, 0x02, 0x04, 0x03, 0x05, 0x05, 0x04, 0x04, 0x00, 0x00, 0x01, 0x7d}

var stdACSymbols = []byte{
	0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
	0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08, 0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
	0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
	0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
	0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
	0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
	0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
	0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
	0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
	0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
	0xf9, 0xfa,
}

// huffCode is one encoder-side code assignment.
type huffCode struct {
	code uint32
	bits int
}

// buildTestHuffTable assembles a huffTable from raw counts and symbols.
func buildTestHuffTable(counts, symbols []byte) *huffTable {
	t := &huffTable{set: true}

	total := uint32(0)
	for i := 0; i < 16; i++ {
		total += uint32(counts[i])
		t.offsets[i+1] = total
	}

	copy(t.symbols[:], symbols)

	return t
}

// encoderCodes maps each symbol of a table to its canonical code and length.
func encoderCodes(t *huffTable) map[uint8]huffCode {
	var codes [162]uint32
	generateCodes(t, &codes)

	m := make(map[uint8]huffCode)
	for l := 1; l <= 16; l++ {
		for k := t.offsets[l-1]; k < t.offsets[l]; k++ {
			m[t.symbols[k]] = huffCode{code: codes[k], bits: l}
		}
	}

	return m
}

// scanWriter emits an entropy-coded payload with byte stuffing and restart
// markers.
type scanWriter struct {
	out   []byte
	acc   uint32
	nbits int
}

func (s *scanWriter) writeBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		s.acc = (s.acc << 1) | ((v >> uint(i)) & 1)
		s.nbits++

		if s.nbits == 8 {
			b := byte(s.acc)
			s.out = append(s.out, b)
			if b == 0xFF {
				s.out = append(s.out, 0x00)
			}

			s.acc = 0
			s.nbits = 0
		}
	}
}

// alignOnes pads any partial byte with 1-bits, as JPEG encoders do before a
// marker.
func (s *scanWriter) alignOnes() {
	if s.nbits != 0 {
		s.writeBits((1<<uint(8-s.nbits))-1, 8-s.nbits)
	}
}

// restartMarker flushes the bit buffer and emits RSTn, unescaped.
func (s *scanWriter) restartMarker(n int) {
	s.alignOnes()
	s.out = append(s.out, 0xFF, 0xD0+byte(n&7))
}

// magnitude returns the JPEG magnitude category and value bits for v.
func magnitude(v int32) (size int, bitsVal uint32) {
	if v == 0 {
		return 0, 0
	}

	a := v
	if a < 0 {
		a = -a
	}

	size = bits.Len32(uint32(a))

	if v < 0 {
		return size, uint32(v + (1 << uint(size)) - 1)
	}

	return size, uint32(v)
}

// encodeBlock writes one block of zigzag-ordered coefficients: differential
// DC, then run-length coded AC with ZRL and EOB.
func encodeBlock(s *scanWriter, coef *[64]int32, pred *int32, dc, ac map[uint8]huffCode) {
	diff := coef[0] - *pred
	*pred = coef[0]

	size, val := magnitude(diff)
	c := dc[uint8(size)]
	s.writeBits(c.code, c.bits)
	s.writeBits(val, size)

	last := 63
	for last > 0 && coef[last] == 0 {
		last--
	}

	run := 0
	for i := 1; i <= last; i++ {
		if coef[i] == 0 {
			run++

			continue
		}

		for run > 15 {
			zrl := ac[0xF0]
			s.writeBits(zrl.code, zrl.bits)
			run -= 16
		}

		size, val := magnitude(coef[i])
		c := ac[uint8(run<<4|size)]
		s.writeBits(c.code, c.bits)
		s.writeBits(val, size)
		run = 0
	}

	if last < 63 {
		eob := ac[0x00]
		s.writeBits(eob.code, eob.bits)
	}
}

// appendSegment appends a marker segment with its length field.
func appendSegment(dst []byte, marker byte, payload []byte) []byte {
	dst = append(dst, 0xFF, marker)
	n := len(payload) + 2
	dst = append(dst, byte(n>>8), byte(n))

	return append(dst, payload...)
}

// makeJPEG builds a complete baseline JPEG file. blocks holds one entry per
// MCU in scan order with per-component coefficient blocks in zigzag order
// (only index 0 is used when ncomp is 1). All components share quantization
// table 0 (all ones) and Huffman tables 0.
func makeJPEG(width, height, ncomp, rstInterval int, blocks [][3][64]int32) []byte {
	data := []byte{0xFF, 0xD8} // SOI

	// DQT: table 0, 8-bit, all ones.
	qt := make([]byte, 65)
	for i := 1; i < 65; i++ {
		qt[i] = 1
	}
	data = appendSegment(data, dqt, qt)

	// SOF0.
	sof := []byte{8, byte(height >> 8), byte(height), byte(width >> 8), byte(width), byte(ncomp)}
	for i := 0; i < ncomp; i++ {
		sof = append(sof, byte(i+1), 0x11, 0x00)
	}
	data = appendSegment(data, sof0, sof)

	// DHT: DC table 0 and AC table 0.
	data = appendSegment(data, dht, append(append([]byte{0x00}, stdDCCounts...), stdDCSymbols...))
	data = appendSegment(data, dht, append(append([]byte{0x10}, stdACCounts...), stdACSymbols...))

	if rstInterval > 0 {
		data = appendSegment(data, dri, []byte{byte(rstInterval >> 8), byte(rstInterval)})
	}

	// SOS.
	scan := []byte{byte(ncomp)}
	for i := 0; i < ncomp; i++ {
		scan = append(scan, byte(i+1), 0x00)
	}
	scan = append(scan, 0x00, 0x3F, 0x00)
	data = appendSegment(data, sos, scan)

	// Entropy-coded payload.
	dcCodes := encoderCodes(buildTestHuffTable(stdDCCounts, stdDCSymbols))
	acCodes := encoderCodes(buildTestHuffTable(stdACCounts, stdACSymbols))

	s := &scanWriter{}
	var preds [3]int32
	nextRst := 0

	for i := range blocks {
		if rstInterval > 0 && i > 0 && i%rstInterval == 0 {
			s.restartMarker(nextRst)
			nextRst = (nextRst + 1) & 7
			preds = [3]int32{}
		}

		for c := 0; c < ncomp; c++ {
			encodeBlock(s, &blocks[i][c], &preds[c], dcCodes, acCodes)
		}
	}

	s.alignOnes()
	data = append(data, s.out...)

	return append(data, 0xFF, eoi) // EOI
}

// dcOnly builds a zigzag coefficient block holding just a DC value.
func dcOnly(dc int32) [64]int32 {
	var b [64]int32
	b[0] = dc

	return b
}
