package jpeg2bmp

import (
	"fmt"
	"image"
)

// quantTable is an 8x8 quantization matrix stored in zigzag order.
type quantTable struct {
	set   bool
	table [64]uint16
}

// huffTable is a canonical Huffman table as carried in a DHT segment:
// counts of codes per length 1..16 turned into prefix-sum offsets, plus a
// flat symbol array partitioned by code length.
type huffTable struct {
	set     bool
	offsets [17]uint32
	symbols [162]uint8
}

// component stores information about a single color component (Y, Cb, or Cr).
type component struct {
	used               bool  // Set when the component is declared (SOF) or selected (SOS).
	ssX, ssY           int   // Sampling factors; must both be 1.
	qtSel              int   // Quantization table selector.
	dcTabSel, acTabSel int   // Huffman table selectors for DC and AC coefficients.
	dcPred             int32 // DC prediction value for differential coding.
}

// decoder holds the state of the JPEG decoding process. The segment
// decoders populate it monotonically; after parse() returns it is read-only
// for the remaining pipeline stages.
type decoder struct {
	jpegData      []byte // Input buffer containing the entire JPEG file.
	pos           int    // Current position index in the input buffer.
	size          int    // Remaining bytes to be processed.
	length        int    // Remaining payload bytes of the current marker segment.
	frameType     byte   // SOF marker code; only SOF0 is accepted.
	width, height int    // Dimensions of the final image.
	ncomp         int    // Number of color components (1 for grayscale, 3 for color).
	comp          [3]component
	qtab          [4]*quantTable
	htabDC        [4]*huffTable
	htabAC        [4]*huffTable
	vlcTab        [8]*[65536]vlcCode // Lookup tables for DC (0-3) and AC (4-7) decoding. Pointers for pooling.
	rstInterval   int                // Restart interval in MCUs; 0 disables.
	zeroBased     bool               // Component IDs in this file start from 0.
	scanComps     int                // Number of components selected by SOS.
	huffmanData   []byte             // Entropy-coded payload after marker unstuffing.
}

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }

// newDecoder creates a new decoder instance and allocates the large tables.
func newDecoder() *decoder {
	d := new(decoder)
	for i := 0; i < 4; i++ {
		d.qtab[i] = new(quantTable)
		d.htabDC[i] = new(huffTable)
		d.htabAC[i] = new(huffTable)
	}

	for i := 0; i < 8; i++ {
		d.vlcTab[i] = new([65536]vlcCode)
	}

	return d
}

// reset clears the decoder state for reuse, preserving the allocated tables.
func (d *decoder) reset() {
	qtabTmp := d.qtab
	htabDCTmp := d.htabDC
	htabACTmp := d.htabAC
	vlcTmp := d.vlcTab
	huffTmp := d.huffmanData

	// Zero the struct. This clears the input reference allowing GC, and resets all state variables.
	*d = decoder{}

	d.qtab = qtabTmp
	d.htabDC = htabDCTmp
	d.htabAC = htabACTmp
	d.vlcTab = vlcTmp
	d.huffmanData = huffTmp[:0]

	for i := 0; i < 4; i++ {
		*d.qtab[i] = quantTable{}
		*d.htabDC[i] = huffTable{}
		*d.htabAC[i] = huffTable{}
	}
}

// panic triggers an internal panic to signal a decoding error in the hot path.
func (d *decoder) panic(err error) {
	panic(errDecode{err})
}

// zz is the zigzag ordering table. It maps the 1D order of coefficients in the JPEG stream to their 2D position in an 8x8 block.
var zz = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// clip clamps an int32 value to the valid 8-bit pixel range [0, 255].
func clip(x int32) byte {
	if x < 0 {
		return 0
	}

	if x > 255 {
		return 255
	}

	return byte(x)
}

// skip advances the current position in the jpegData buffer by 'count' bytes.
func (d *decoder) skip(count int) error {
	d.pos += count
	d.size -= count

	if d.length >= count {
		d.length -= count
	} else {
		d.length = 0
	}

	if d.size < 0 {
		return ErrSyntax
	}

	return nil
}

// decode16 reads a 16-bit big-endian integer from the specified offset.
func (d *decoder) decode16(offset int) int {
	p := d.pos + offset

	return (int(d.jpegData[p]) << 8) | int(d.jpegData[p+1])
}

// decodeLength reads the 16-bit length field of a JPEG marker segment and updates the decoder's internal length counter.
func (d *decoder) decodeLength() error {
	if d.size < 2 {
		return ErrSyntax
	}

	d.length = d.decode16(0)
	if d.length > d.size {
		return ErrSyntax
	}

	if d.length < 2 {
		return ErrSyntax // Length must include its own 2 bytes.
	}

	// Skip the 2 bytes of the length field itself.
	// d.length will now hold the size of the remaining payload.
	return d.skip(2)
}

// skipMarker reads the length of the current marker's payload and skips it.
func (d *decoder) skipMarker() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	return d.skip(d.length)
}

// decodeSOF decodes the Start of Frame segment. It extracts image
// dimensions, the component count, and per-component sampling factors and
// quantization table selectors.
func (d *decoder) decodeSOF(marker byte) error {
	if d.ncomp != 0 {
		return fmt.Errorf("multiple SOF markers: %w", ErrSyntax)
	}

	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length < 6 {
		return ErrSyntax
	}

	d.frameType = marker

	if d.jpegData[d.pos] != 8 {
		// Precision must be 8-bit.
		return fmt.Errorf("precision %d: %w", d.jpegData[d.pos], ErrUnsupported)
	}

	d.height = d.decode16(1)
	d.width = d.decode16(3)
	if d.width == 0 || d.height == 0 {
		return fmt.Errorf("invalid dimensions: %w", ErrSyntax)
	}

	ncomp := int(d.jpegData[d.pos+5])
	if err := d.skip(6); err != nil {
		return err
	}

	if ncomp == 4 {
		return fmt.Errorf("CMYK color mode: %w", ErrUnsupported)
	}

	if ncomp == 0 || ncomp > 3 {
		return fmt.Errorf("%d color components: %w", ncomp, ErrSyntax)
	}

	d.ncomp = ncomp

	if d.length < d.ncomp*3 {
		return ErrSyntax
	}

	for i := 0; i < d.ncomp; i++ {
		id := int(d.jpegData[d.pos])

		// Component IDs are usually 1, 2, 3 but are rarely seen as 0, 1, 2.
		// Once a zero ID is seen, all IDs in this file are biased by one.
		if id == 0 {
			d.zeroBased = true
		}
		if d.zeroBased {
			id++
		}

		if id == 4 || id == 5 {
			return fmt.Errorf("YIQ color mode: %w", ErrUnsupported)
		}
		if id == 0 || id > 3 {
			return fmt.Errorf("component ID %d: %w", id, ErrSyntax)
		}

		c := &d.comp[id-1]
		if c.used {
			return fmt.Errorf("duplicate component ID %d: %w", id, ErrSyntax)
		}
		c.used = true

		sampling := d.jpegData[d.pos+1]
		c.ssX = int(sampling >> 4)
		c.ssY = int(sampling & 0x0F)

		c.qtSel = int(d.jpegData[d.pos+2])
		if c.qtSel > 3 {
			return fmt.Errorf("quantization table ID %d: %w", c.qtSel, ErrSyntax)
		}

		if err := d.skip(3); err != nil {
			return err
		}
	}

	if d.length != 0 {
		return fmt.Errorf("SOF length mismatch: %w", ErrSyntax)
	}

	return nil
}

// decodeDQT decodes the Define Quantization Table segment. One segment may
// carry several tables; each is 64 values in zigzag order, 8-bit or 16-bit
// wide depending on the table header's high nibble.
func (d *decoder) decodeDQT() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	for d.length > 0 {
		info := d.jpegData[d.pos]
		if err := d.skip(1); err != nil {
			return err
		}

		id := int(info & 0x0F)
		if id > 3 {
			return fmt.Errorf("quantization table ID %d: %w", id, ErrSyntax)
		}

		t := d.qtab[id]
		t.set = true

		if info>>4 != 0 {
			if d.length < 128 {
				return ErrSyntax
			}

			for i := 0; i < 64; i++ {
				t.table[i] = uint16(d.decode16(2 * i))
			}

			if err := d.skip(128); err != nil {
				return err
			}
		} else {
			if d.length < 64 {
				return ErrSyntax
			}

			for i := 0; i < 64; i++ {
				t.table[i] = uint16(d.jpegData[d.pos+i])
			}

			if err := d.skip(64); err != nil {
				return err
			}
		}
	}

	if d.length != 0 {
		return fmt.Errorf("DQT length mismatch: %w", ErrSyntax)
	}

	return nil
}

// decodeDHT decodes the Define Huffman Table segment. Each table is 16
// per-length code counts followed by the flat symbol list; the counts become
// prefix-sum offsets partitioning the symbols by code length.
func (d *decoder) decodeDHT() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	for d.length > 0 {
		if d.length < 17 {
			return ErrSyntax
		}

		info := d.jpegData[d.pos]
		id := int(info & 0x0F)
		class := info >> 4

		if id > 3 {
			return fmt.Errorf("Huffman table ID %d: %w", id, ErrSyntax)
		}
		if class > 1 {
			return fmt.Errorf("Huffman table class %d: %w", class, ErrSyntax)
		}

		var t *huffTable
		if class != 0 {
			t = d.htabAC[id]
		} else {
			t = d.htabDC[id]
		}
		t.set = true

		t.offsets[0] = 0
		allSymbols := uint32(0)
		for i := 1; i <= 16; i++ {
			allSymbols += uint32(d.jpegData[d.pos+i])
			t.offsets[i] = allSymbols
		}

		if allSymbols > 162 {
			return fmt.Errorf("%d symbols in Huffman table: %w", allSymbols, ErrSyntax)
		}

		if err := d.skip(17); err != nil {
			return err
		}

		if d.length < int(allSymbols) {
			return ErrSyntax
		}

		for i := uint32(0); i < allSymbols; i++ {
			t.symbols[i] = d.jpegData[d.pos+int(i)]
		}

		if err := d.skip(int(allSymbols)); err != nil {
			return err
		}
	}

	if d.length != 0 {
		return fmt.Errorf("DHT length mismatch: %w", ErrSyntax)
	}

	return nil
}

// decodeDRI decodes the Define Restart Interval segment.
func (d *decoder) decodeDRI() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length != 2 {
		return fmt.Errorf("DRI length mismatch: %w", ErrSyntax)
	}

	d.rstInterval = d.decode16(0)

	return d.skip(d.length)
}

// decodeSOS decodes the Start of Scan segment: per-component Huffman table
// selectors plus the spectral selection and successive approximation
// parameters, which must hold their baseline values.
func (d *decoder) decodeSOS() error {
	if d.ncomp == 0 {
		return fmt.Errorf("SOS before SOF: %w", ErrSyntax)
	}

	if err := d.decodeLength(); err != nil {
		return err
	}

	// A scan selects its components anew.
	for i := range d.comp {
		d.comp[i].used = false
	}

	if d.length < 1 {
		return ErrSyntax
	}

	ns := int(d.jpegData[d.pos])
	if err := d.skip(1); err != nil {
		return err
	}

	d.scanComps = ns

	if d.length < 2*ns+3 {
		return ErrSyntax
	}

	for i := 0; i < ns; i++ {
		id := int(d.jpegData[d.pos])
		if d.zeroBased {
			id++
		}

		if id == 0 || id > d.ncomp {
			return fmt.Errorf("scan component ID %d: %w", id, ErrSyntax)
		}

		c := &d.comp[id-1]
		if c.used {
			return fmt.Errorf("duplicate scan component ID %d: %w", id, ErrSyntax)
		}
		c.used = true

		sel := d.jpegData[d.pos+1]
		c.dcTabSel = int(sel >> 4)
		c.acTabSel = int(sel & 0x0F)
		if c.dcTabSel > 3 || c.acTabSel > 3 {
			return fmt.Errorf("Huffman table selector: %w", ErrSyntax)
		}

		if err := d.skip(2); err != nil {
			return err
		}
	}

	// Baseline scans cover the full spectrum in one pass.
	ss := d.jpegData[d.pos]
	se := d.jpegData[d.pos+1]
	sa := d.jpegData[d.pos+2]

	if ss != 0 || se != 63 {
		return fmt.Errorf("spectral selection %d..%d: %w", ss, se, ErrUnsupported)
	}
	if sa != 0 {
		return fmt.Errorf("successive approximation: %w", ErrUnsupported)
	}

	if err := d.skip(3); err != nil {
		return err
	}

	if d.length != 0 {
		return fmt.Errorf("SOS length mismatch: %w", ErrSyntax)
	}

	return nil
}

// extractScanData consumes the entropy-coded payload that follows SOS up to
// EOI, unstuffing 0xFF00 escapes and discarding restart markers, so that the
// bit reader sees a clean byte stream.
func (d *decoder) extractScanData() error {
	// The payload is at most as long as what remains of the file.
	if cap(d.huffmanData) < d.size {
		d.huffmanData = make([]byte, 0, d.size)
	} else {
		d.huffmanData = d.huffmanData[:0]
	}

	for {
		if d.size <= 0 {
			return fmt.Errorf("file ended prematurely: %w", ErrSyntax)
		}

		b := d.jpegData[d.pos]
		d.pos++
		d.size--

		if b != 0xFF {
			d.huffmanData = append(d.huffmanData, b)

			continue
		}

		if d.size <= 0 {
			return fmt.Errorf("file ended prematurely: %w", ErrSyntax)
		}

		m := d.jpegData[d.pos]
		d.pos++
		d.size--

		switch {
		case m == 0x00:
			// Stuffed byte: a literal 0xFF in the payload.
			d.huffmanData = append(d.huffmanData, 0xFF)
		case m == eoi:
			return nil
		case m >= rst0 && m <= rst7:
			// Restart markers carry no data; the scan resynchronizes by MCU count.
		case m == 0xFF:
			// Filler byte; the next byte may still be a marker code.
			d.pos--
			d.size++
		default:
			return fmt.Errorf("marker 0x%02X in scan data: %w", m, ErrSyntax)
		}
	}
}

// validate checks the constraints that can only be verified once the whole
// header is known: the component count, sampling factors, and that every
// referenced quantization and Huffman table was defined.
func (d *decoder) validate() error {
	if d.ncomp != 1 && d.ncomp != 3 {
		return fmt.Errorf("%d color components: %w", d.ncomp, ErrUnsupported)
	}

	if d.scanComps != d.ncomp {
		return fmt.Errorf("scan covers %d of %d components: %w", d.scanComps, d.ncomp, ErrUnsupported)
	}

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]

		if c.ssX != 1 || c.ssY != 1 {
			return fmt.Errorf("sampling factor %dx%d: %w", c.ssX, c.ssY, ErrUnsupported)
		}

		if !d.qtab[c.qtSel].set {
			return fmt.Errorf("undefined quantization table %d: %w", c.qtSel, ErrSyntax)
		}
		if !d.htabDC[c.dcTabSel].set {
			return fmt.Errorf("undefined Huffman DC table %d: %w", c.dcTabSel, ErrSyntax)
		}
		if !d.htabAC[c.acTabSel].set {
			return fmt.Errorf("undefined Huffman AC table %d: %w", c.acTabSel, ErrSyntax)
		}
	}

	return nil
}

// Marker codes handled by the parser.
const (
	tem    = 0x01
	sof0   = 0xC0
	dht    = 0xC4
	dac    = 0xCC
	rst0   = 0xD0
	rst7   = 0xD7
	soi    = 0xD8
	eoi    = 0xD9
	sos    = 0xDA
	dqt    = 0xDB
	dnl    = 0xDC
	dri    = 0xDD
	dhp    = 0xDE
	expSeg = 0xDF
	app0   = 0xE0
	app15  = 0xEF
	jpg0   = 0xF0
	jpg13  = 0xFD
	com    = 0xFE
)

// parse runs the marker loop over the whole file: segment decoders up to and
// including SOS, then entropy payload extraction and global validation.
// If configOnly is true, parsing stops after SOF.
func (d *decoder) parse(configOnly bool) error {
	// The file must begin with SOI.
	if d.size < 2 || d.jpegData[0] != 0xFF || d.jpegData[1] != soi {
		return ErrNoJPEG
	}

	if err := d.skip(2); err != nil {
		return err
	}

	for {
		if d.size < 2 {
			return fmt.Errorf("file ended prematurely: %w", ErrSyntax)
		}

		if d.jpegData[d.pos] != 0xFF {
			return fmt.Errorf("expected a marker: %w", ErrSyntax)
		}

		marker := d.jpegData[d.pos+1]
		if err := d.skip(2); err != nil {
			return err
		}

		// Any number of 0xFF fill bytes before a marker code is allowed.
		if marker == 0xFF {
			d.pos--
			d.size++

			continue
		}

		switch {
		case marker == sof0:
			if err := d.decodeSOF(marker); err != nil {
				return err
			}

			if configOnly {
				return nil
			}
		case marker == dqt:
			if err := d.decodeDQT(); err != nil {
				return err
			}
		case marker == dht:
			if err := d.decodeDHT(); err != nil {
				return err
			}
		case marker == dri:
			if err := d.decodeDRI(); err != nil {
				return err
			}
		case marker == sos:
			if err := d.decodeSOS(); err != nil {
				return err
			}

			if err := d.extractScanData(); err != nil {
				return err
			}

			return d.validate()
		case marker >= app0 && marker <= app15:
			if err := d.skipMarker(); err != nil {
				return err
			}
		case marker == com, marker >= jpg0 && marker <= jpg13, marker == dnl, marker == dhp, marker == expSeg:
			if err := d.skipMarker(); err != nil {
				return err
			}
		case marker == tem:
			// TEM has no length.
		case marker == soi:
			return fmt.Errorf("embedded JPEG: %w", ErrUnsupported)
		case marker == eoi:
			return fmt.Errorf("EOI before SOS: %w", ErrSyntax)
		case marker == dac:
			return fmt.Errorf("arithmetic coding: %w", ErrUnsupported)
		case marker > sof0 && marker <= 0xCF:
			// SOF1..SOF15 (progressive, hierarchical, lossless, ...).
			return fmt.Errorf("SOF marker 0x%02X: %w", marker, ErrUnsupported)
		case marker >= rst0 && marker <= rst7:
			return fmt.Errorf("RST marker before SOS: %w", ErrSyntax)
		default:
			return fmt.Errorf("unknown marker 0x%02X: %w", marker, ErrSyntax)
		}
	}
}

// decode runs the full pipeline over a JPEG byte stream: header parse,
// entropy decode into the MCU array, dequantization, inverse DCT, color
// conversion, and assembly of the final image. If configOnly is true, it
// stops after reading the image metadata (SOF marker).
func (d *decoder) decode(jpegData []byte, configOnly bool) (image.Image, error) {
	d.jpegData = jpegData
	d.pos = 0
	d.size = len(jpegData)

	if err := d.parse(configOnly); err != nil {
		return nil, err
	}

	if configOnly {
		if d.ncomp == 0 {
			return nil, fmt.Errorf("missing SOF: %w", ErrSyntax)
		}

		return nil, nil
	}

	mcus, err := d.decodeHuffmanData()
	if err != nil {
		return nil, err
	}

	d.dequantize(mcus)
	inverseDCT(mcus, d.ncomp)
	d.toRGB(mcus)

	return d.assemble(mcus), nil
}
