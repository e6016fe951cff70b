package softpipe

import (
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/math/f32"
)

func TestNewFramebuffer(t *testing.T) {
	fb := NewFramebuffer(4, 3)
	if fb.Width() != 4 || fb.Height() != 3 {
		t.Errorf("size = %dx%d, want 4x3", fb.Width(), fb.Height())
	}
	if len(fb.Data()) != 4*3*4 {
		t.Errorf("data length = %d, want %d", len(fb.Data()), 4*3*4)
	}
	for i, b := range fb.Data() {
		if b != 0 {
			t.Fatalf("pixel data not zeroed at byte %d", i)
		}
	}
	if got, want := fb.Bounds(), (Rect{Width: 4, Height: 3}); got != want {
		t.Errorf("Bounds() = %+v, want %+v", got, want)
	}
}

func TestNewFramebufferNegativeSize(t *testing.T) {
	fb := NewFramebuffer(-1, -1)
	if fb.Width() != 0 || fb.Height() != 0 {
		t.Errorf("size = %dx%d, want 0x0", fb.Width(), fb.Height())
	}
}

func TestFramebufferStoreLoad(t *testing.T) {
	fb := NewFramebuffer(2, 2)
	fb.Store(1, 0, f32.Vec4{1, 0, 0.5, 1})

	got := fb.Load(1, 0)
	want := f32.Vec4{1, 0, float32(128) / 255, 1}
	if got != want {
		t.Errorf("Load = %v, want %v", got, want)
	}
	if fb.Load(0, 0) != (f32.Vec4{}) {
		t.Error("untouched pixel should be transparent black")
	}
}

func TestFramebufferStoreClamps(t *testing.T) {
	fb := NewFramebuffer(1, 1)
	fb.Store(0, 0, f32.Vec4{2, -1, 0.5, 1.5})
	d := fb.Data()
	if d[0] != 255 || d[1] != 0 || d[3] != 255 {
		t.Errorf("clamped store wrote %v", d[:4])
	}
}

func TestFramebufferOutOfRange(t *testing.T) {
	fb := NewFramebuffer(2, 2)
	fb.Store(-1, 0, f32.Vec4{1, 1, 1, 1})
	fb.Store(2, 0, f32.Vec4{1, 1, 1, 1})
	fb.Store(0, 2, f32.Vec4{1, 1, 1, 1})
	for i, b := range fb.Data() {
		if b != 0 {
			t.Fatalf("out-of-range store modified byte %d", i)
		}
	}
	if fb.Load(5, 5) != (f32.Vec4{}) {
		t.Error("out-of-range load should return transparent black")
	}
}

func TestFramebufferClear(t *testing.T) {
	fb := NewFramebuffer(3, 3)
	fb.Clear(f32.Vec4{0, 1, 0, 1})
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if got := fb.Load(x, y); got != (f32.Vec4{0, 1, 0, 1}) {
				t.Fatalf("pixel (%d,%d) = %v after Clear", x, y, got)
			}
		}
	}
}

func TestFramebufferImageRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	src.SetRGBA(1, 1, color.RGBA{B: 255, A: 255})

	fb := FromImage(src)
	out := fb.ToImage()
	if got := out.RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel (0,0) = %v", got)
	}
	if got := out.RGBAAt(1, 1); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("pixel (1,1) = %v", got)
	}
}
