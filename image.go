package pixfunc

import (
	"fmt"
	"image"
	"math"

	"github.com/gogpu/pixfunc/internal/imageio"
)

// LoadImage decodes a PNG, JPEG, BMP, TIFF or WebP file into a UInt8
// buffer. Grayscale images have axes (x, y); color images (x, y, c) with
// three channels, or four when the image has transparency.
func LoadImage(path string) (*Buffer, error) {
	m, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	return fromPlanar(m)
}

// FromImage converts a standard library image to a buffer laid out like
// LoadImage's.
func FromImage(img image.Image) (*Buffer, error) {
	return fromPlanar(imageio.FromStd(img))
}

func fromPlanar(m *imageio.Image) (*Buffer, error) {
	r := Extents(m.Width, m.Height, m.Channels)
	if m.Channels == 1 {
		r = r[:2]
	}
	b, err := NewBufferFrom(m.Pix, r)
	if err != nil {
		return nil, err
	}
	b.SetName("input")
	return b, nil
}

// SaveImage encodes a two or three axis buffer with 1, 3 or 4 channels in
// the format named by the file extension (png, jpg, bmp, tiff). Integer
// values are clamped to [0, 255]; float values are read as [0, 1].
func SaveImage(b *Buffer, path string) error {
	m, err := toPlanar(b)
	if err != nil {
		return err
	}
	return imageio.Save(m, path)
}

// ToImage converts a buffer to a standard library image, with the same
// value mapping as SaveImage.
func ToImage(b *Buffer) (image.Image, error) {
	m, err := toPlanar(b)
	if err != nil {
		return nil, err
	}
	return m.ToStd()
}

func toPlanar(b *Buffer) (*imageio.Image, error) {
	if b.Dims() != 2 && b.Dims() != 3 {
		return nil, fmt.Errorf("%w: image buffers have 2 or 3 dimensions, %s has %d",
			ErrInvalidRegion, b.Name(), b.Dims())
	}
	w, h, c := b.Width(), b.Height(), b.Channels()
	m, err := imageio.New(w, h, c)
	if err != nil {
		return nil, err
	}

	if b.Type() == UInt8 {
		copy(m.Pix, Data[uint8](b))
		return m, nil
	}

	// Storage is planar in the same order as imageio.Image.
	for i := range m.Pix {
		var v float64
		if b.Type().IsFloat() {
			v = math.Round(b.data.getFloat(i) * 255)
		} else {
			v = b.Type().intToFloat(b.data.getInt(i))
		}
		m.Pix[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return m, nil
}
