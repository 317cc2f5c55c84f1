package jpeg2bmp

import (
	"fmt"
	"io"
)

// DumpHeader parses the JPEG header from r and writes a human-readable
// summary of the quantization tables, frame geometry, Huffman tables and
// scan parameters to w. The entropy-coded data is extracted but not decoded.
func DumpHeader(r io.Reader, w io.Writer) error {
	data, err := slurp(r)
	if err != nil {
		return err
	}

	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	d.jpegData = data
	d.pos = 0
	d.size = len(data)

	if err := d.parse(false); err != nil {
		return err
	}

	fmt.Fprintln(w, "DQT=============")
	for i, t := range d.qtab {
		if !t.set {
			continue
		}

		fmt.Fprintf(w, "Table ID: %d\n", i)
		fmt.Fprint(w, "Table Data:")
		for j, v := range t.table {
			if j%8 == 0 {
				fmt.Fprintln(w)
			}

			fmt.Fprintf(w, "%d ", v)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "SOF=============")
	fmt.Fprintf(w, "Frame Type: 0x%02X\n", d.frameType)
	fmt.Fprintf(w, "Height: %d\n", d.height)
	fmt.Fprintf(w, "Width: %d\n", d.width)

	fmt.Fprintln(w, "DHT=============")
	fmt.Fprintln(w, "DC Tables:")
	for i, t := range d.htabDC {
		if t.set {
			dumpHuffTable(w, i, t)
		}
	}
	fmt.Fprintln(w, "AC Tables:")
	for i, t := range d.htabAC {
		if t.set {
			dumpHuffTable(w, i, t)
		}
	}

	fmt.Fprintln(w, "SOS=============")
	fmt.Fprintf(w, "Restart Interval: %d\n", d.rstInterval)
	fmt.Fprintln(w, "Color Components:")
	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		fmt.Fprintf(w, "Component ID: %d\n", i+1)
		fmt.Fprintf(w, "Sampling Factor: %dx%d\n", c.ssX, c.ssY)
		fmt.Fprintf(w, "Quantization Table ID: %d\n", c.qtSel)
		fmt.Fprintf(w, "Huffman DC Table ID: %d\n", c.dcTabSel)
		fmt.Fprintf(w, "Huffman AC Table ID: %d\n", c.acTabSel)
	}
	fmt.Fprintf(w, "Length of Huffman Data: %d\n", len(d.huffmanData))

	return nil
}

// dumpHuffTable prints the symbols of one Huffman table grouped by code length.
func dumpHuffTable(w io.Writer, id int, t *huffTable) {
	fmt.Fprintf(w, "Table ID: %d\n", id)
	fmt.Fprintln(w, "Symbols:")
	for j := 0; j < 16; j++ {
		fmt.Fprintf(w, "%d: ", j+1)
		for k := t.offsets[j]; k < t.offsets[j+1]; k++ {
			fmt.Fprintf(w, "%d ", t.symbols[k])
		}
		fmt.Fprintln(w)
	}
}
