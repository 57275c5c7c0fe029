// Package imageio loads and saves 8-bit images as planar channel data for
// pixfunc input and output buffers.
//
// Decoding supports PNG, JPEG, BMP, TIFF and WebP. Encoding supports PNG,
// JPEG, BMP and TIFF. Pixel data is stored planar: all of channel 0 first,
// then channel 1, and so on, with x varying fastest inside a plane.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // registers the WebP decoder
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the file extension has no encoder.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("imageio: empty data")

	// ErrInvalidChannels is returned for channel counts other than 1, 3 or 4.
	ErrInvalidChannels = errors.New("imageio: invalid channel count")

	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("imageio: invalid dimensions")
)

// DefaultJPEGQuality is used by Save for .jpg and .jpeg files.
const DefaultJPEGQuality = 90

// Image is a planar 8-bit image.
type Image struct {
	Width    int
	Height   int
	Channels int

	// Pix holds Channels planes of Width*Height bytes each.
	Pix []uint8
}

// New allocates a zeroed planar image.
func New(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// Offset returns the index into Pix of sample (x, y, c).
func (m *Image) Offset(x, y, c int) int {
	return (c*m.Height+y)*m.Width + x
}

// Load loads an image from the given file path, auto-detecting the format.
func Load(path string) (*Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// LoadFromBytes decodes an image from a byte slice.
func LoadFromBytes(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes an image from the given reader using any registered format.
func Decode(r io.Reader) (*Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode: %w", err)
	}
	return FromStd(img), nil
}

// Save encodes the image in the format named by the file extension.
func Save(m *Image, path string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !CanEncode(format) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("imageio: create file: %w", err)
	}

	if err := Encode(f, m, format); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// CanEncode reports whether Encode supports the format name.
func CanEncode(format string) bool {
	switch format {
	case "png", "jpg", "jpeg", "bmp", "tif", "tiff":
		return true
	}
	return false
}

// Encode writes the image to w in the named format (png, jpg, bmp, tiff).
func Encode(w io.Writer, m *Image, format string) error {
	img, err := m.ToStd()
	if err != nil {
		return err
	}

	switch format {
	case "png":
		err = png.Encode(w, img)
	case "jpg", "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality})
	case "bmp":
		err = bmp.Encode(w, img)
	case "tif", "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("imageio: encode %s: %w", format, err)
	}
	return nil
}

// FromStd converts a standard library image to planar form. Grayscale
// images get one channel, opaque images three and everything else four.
func FromStd(img image.Image) *Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if gray, ok := img.(*image.Gray); ok {
		m := &Image{Width: width, Height: height, Channels: 1, Pix: make([]uint8, width*height)}
		for y := range height {
			srcStart := (y+bounds.Min.Y-gray.Rect.Min.Y)*gray.Stride + (bounds.Min.X - gray.Rect.Min.X)
			copy(m.Pix[y*width:(y+1)*width], gray.Pix[srcStart:srcStart+width])
		}
		return m
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}

	channels := 3
	if !nrgba.Opaque() {
		channels = 4
	}

	m := &Image{Width: width, Height: height, Channels: channels, Pix: make([]uint8, width*height*channels)}
	for y := range height {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range width {
			for c := range channels {
				m.Pix[m.Offset(x, y, c)] = row[x*4+c]
			}
		}
	}
	return m
}

// ToStd converts the planar image to *image.Gray (one channel) or
// *image.NRGBA (three or four channels).
func (m *Image) ToStd() (image.Image, error) {
	if m.Width <= 0 || m.Height <= 0 {
		return nil, ErrInvalidDimensions
	}
	rect := image.Rect(0, 0, m.Width, m.Height)

	switch m.Channels {
	case 1:
		gray := image.NewGray(rect)
		for y := range m.Height {
			copy(gray.Pix[y*gray.Stride:], m.Pix[y*m.Width:(y+1)*m.Width])
		}
		return gray, nil

	case 3, 4:
		nrgba := image.NewNRGBA(rect)
		for y := range m.Height {
			for x := range m.Width {
				c := color.NRGBA{A: 255}
				c.R = m.Pix[m.Offset(x, y, 0)]
				c.G = m.Pix[m.Offset(x, y, 1)]
				c.B = m.Pix[m.Offset(x, y, 2)]
				if m.Channels == 4 {
					c.A = m.Pix[m.Offset(x, y, 3)]
				}
				nrgba.SetNRGBA(x, y, c)
			}
		}
		return nrgba, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, m.Channels)
	}
}
