package softpipe

import (
	"image"
	"image/png"
	"os"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// Framebuffer is the destination image of a draw: a rectangular RGBA8 pixel
// grid addressable by integer coordinate. The execution driver reads pixels
// to seed read-modify-write blending and writes the fragment stage's final
// color back at single-sample granularity.
//
// A Framebuffer is exclusively owned by one draw for the duration of an
// Execute call; concurrent draws targeting the same Framebuffer must be
// serialized by the caller.
type Framebuffer struct {
	width  int
	height int
	format gputypes.TextureFormat
	data   []uint8 // RGBA format, 4 bytes per pixel
}

// NewFramebuffer creates a framebuffer with the given dimensions.
// All pixels start as transparent black.
func NewFramebuffer(width, height int) *Framebuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Framebuffer{
		width:  width,
		height: height,
		format: gputypes.TextureFormatRGBA8Unorm,
		data:   make([]uint8, width*height*4),
	}
}

// Width returns the width in pixels.
func (f *Framebuffer) Width() int { return f.width }

// Height returns the height in pixels.
func (f *Framebuffer) Height() int { return f.height }

// Format returns the pixel format of the framebuffer.
func (f *Framebuffer) Format() gputypes.TextureFormat { return f.format }

// Data returns the raw pixel data (RGBA format, row-major).
func (f *Framebuffer) Data() []uint8 { return f.data }

// Bounds returns the framebuffer rectangle anchored at the origin.
func (f *Framebuffer) Bounds() Rect {
	return Rect{Width: int32(f.width), Height: int32(f.height)}
}

// Load returns the color of a pixel as normalized components in [0, 1].
// Out-of-range coordinates return transparent black.
func (f *Framebuffer) Load(x, y int) f32.Vec4 {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return f32.Vec4{}
	}
	i := (y*f.width + x) * 4
	return f32.Vec4{
		float32(f.data[i+0]) / 255,
		float32(f.data[i+1]) / 255,
		float32(f.data[i+2]) / 255,
		float32(f.data[i+3]) / 255,
	}
}

// Store sets the color of a pixel from normalized components.
// Components are clamped to [0, 1]. Out-of-range coordinates are ignored.
func (f *Framebuffer) Store(x, y int, c f32.Vec4) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return
	}
	i := (y*f.width + x) * 4
	f.data[i+0] = quantize(c[0])
	f.data[i+1] = quantize(c[1])
	f.data[i+2] = quantize(c[2])
	f.data[i+3] = quantize(c[3])
}

// Clear fills the entire framebuffer with a color.
func (f *Framebuffer) Clear(c f32.Vec4) {
	r := quantize(c[0])
	g := quantize(c[1])
	b := quantize(c[2])
	a := quantize(c[3])
	for i := 0; i < len(f.data); i += 4 {
		f.data[i+0] = r
		f.data[i+1] = g
		f.data[i+2] = b
		f.data[i+3] = a
	}
}

// quantize converts a normalized component to an 8-bit value,
// clamping to [0, 1] and rounding to nearest.
func quantize(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

// ToImage converts the framebuffer to an image.RGBA.
func (f *Framebuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	copy(img.Pix, f.data)
	return img
}

// FromImage creates a framebuffer with the contents of an image.
func FromImage(img image.Image) *Framebuffer {
	bounds := img.Bounds()
	fb := NewFramebuffer(bounds.Dx(), bounds.Dy())
	for y := 0; y < fb.height; y++ {
		for x := 0; x < fb.width; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*fb.width + x) * 4
			fb.data[i+0] = uint8(r >> 8)
			fb.data[i+1] = uint8(g >> 8)
			fb.data[i+2] = uint8(b >> 8)
			fb.data[i+3] = uint8(a >> 8)
		}
	}
	return fb
}

// WritePNG saves the framebuffer contents to a PNG file.
func (f *Framebuffer) WritePNG(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, f.ToImage())
}
