package pixfunc

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromImageGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(2, 1, color.Gray{Y: 77})

	b, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}
	if b.Dims() != 2 || b.Type() != UInt8 {
		t.Fatalf("FromImage() = %d dims of %v, want 2 dims of uint8", b.Dims(), b.Type())
	}
	if got := b.Int(2, 1); got != 77 {
		t.Errorf("pixel (2, 1) = %d, want 77", got)
	}
}

func TestFromImageColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 9, A: 255})
		}
	}
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	b, err := FromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Region().Equal(Extents(2, 2, 3)) {
		t.Fatalf("Region() = %v, want 2x2x3", b.Region())
	}
	got := []int64{b.Int(1, 1, 0), b.Int(1, 1, 1), b.Int(1, 1, 2)}
	if diff := cmp.Diff([]int64{10, 20, 30}, got); diff != "" {
		t.Errorf("pixel (1, 1) mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadImageRoundTrip(t *testing.T) {
	x, y, c := NewVar("x"), NewVar("y"), NewVar("c")
	f := NewFunc("pattern")
	body := Cast(UInt8, Add(Mul(x, Int(10)), Add(Mul(y, Int(3)), Mul(c, Int(50)))))
	if err := f.Define([]*Var{x, y, c}, body); err != nil {
		t.Fatal(err)
	}
	r := newTestRealizer(t)
	want, err := r.Realize(f, Extents(4, 3, 3))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "pattern.png")
	if err := SaveImage(want, path); err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}
	got, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	if diff := cmp.Diff(Data[uint8](want), Data[uint8](got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestToImageScalesFloats(t *testing.T) {
	b, err := NewBufferFrom([]float32{0, 0.5, 1, 2}, Extents(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	img, err := ToImage(b)
	if err != nil {
		t.Fatalf("ToImage() error = %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("ToImage() = %T, want *image.Gray", img)
	}
	if diff := cmp.Diff([]uint8{0, 128, 255, 255}, gray.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestToImageClampsIntegers(t *testing.T) {
	b, err := NewBufferFrom([]int16{-5, 100, 300, 255}, Extents(4, 1))
	if err != nil {
		t.Fatal(err)
	}
	img, err := ToImage(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint8{0, 100, 255, 255}, img.(*image.Gray).Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestToImageRejectsOtherRanks(t *testing.T) {
	b, _ := NewBuffer(UInt8, Extents(4))
	if _, err := ToImage(b); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("ToImage(1-d) = %v, want ErrInvalidRegion", err)
	}
}
