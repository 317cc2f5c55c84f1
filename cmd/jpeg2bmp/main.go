// Command jpeg2bmp decodes a baseline JPEG file and writes the decoded
// raster next to it as an uncompressed 24-bit BMP.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/gen2brain/jpeg2bmp"
)

func main() {
	verbose := flag.Bool("v", false, "print a summary of the parsed JPEG header")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: jpeg2bmp [-v] <input.jpg>")
		os.Exit(1)
	}

	if err := run(flag.Arg(0), *verbose); err != nil {
		fmt.Printf("Error - %v\n", err)
		os.Exit(1)
	}
}

func run(input string, verbose bool) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	if verbose {
		if err := jpeg2bmp.DumpHeader(bytes.NewReader(data), os.Stdout); err != nil {
			return err
		}
	}

	img, err := jpeg2bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	output := jpeg2bmp.OutputPath(input)

	out, err := os.Create(output)
	if err != nil {
		return err
	}

	if err := jpeg2bmp.EncodeBMP(out, img); err != nil {
		out.Close()
		os.Remove(output)

		return err
	}

	return out.Close()
}
