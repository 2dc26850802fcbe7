package render

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/hajimehoshi/bitmapfont/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// ErrGeometryMismatch is returned when a view has the wrong number of faces.
var ErrGeometryMismatch = errors.New("face count does not match geometry")

const (
	lineHeight  = 13
	accentWidth = 3
	activeWidth = 4
	padding     = 3
)

// Palette holds the key colours by style.
type Palette struct {
	Background color.RGBA
	Text       color.RGBA
	Allow      color.RGBA
	Deny       color.RGBA
	Toggle     color.RGBA
	Option     color.RGBA
	Nav        color.RGBA
	Submit     color.RGBA
	Active     color.RGBA
}

// DefaultPalette returns the built-in colours.
func DefaultPalette() Palette {
	return Palette{
		Background: color.RGBA{0, 0, 0, 255},
		Text:       color.RGBA{40, 40, 48, 255},
		Allow:      color.RGBA{30, 130, 60, 255},
		Deny:       color.RGBA{170, 40, 40, 255},
		Toggle:     color.RGBA{40, 90, 170, 255},
		Option:     color.RGBA{60, 60, 72, 255},
		Nav:        color.RGBA{90, 90, 90, 255},
		Submit:     color.RGBA{200, 140, 20, 255},
		Active:     color.RGBA{255, 255, 255, 255},
	}
}

func (p Palette) fill(s Style) color.RGBA {
	switch s {
	case StyleText:
		return p.Text
	case StyleAllow:
		return p.Allow
	case StyleDeny:
		return p.Deny
	case StyleToggle:
		return p.Toggle
	case StyleOption:
		return p.Option
	case StyleNav:
		return p.Nav
	case StyleSubmit:
		return p.Submit
	default:
		return p.Background
	}
}

// Renderer draws square key images with the bitmap font.
type Renderer struct {
	size int

	mu      sync.RWMutex
	palette Palette
}

// NewRenderer creates a renderer producing size×size key images.
func NewRenderer(size int, palette Palette) *Renderer {
	if size <= 0 {
		size = 72
	}
	return &Renderer{size: size, palette: palette}
}

// SetPalette swaps the colours used by later renders.
func (r *Renderer) SetPalette(p Palette) {
	r.mu.Lock()
	r.palette = p
	r.mu.Unlock()
}

// KeySize returns the edge length of rendered keys in pixels.
func (r *Renderer) KeySize() int {
	return r.size
}

// Render returns one image per key of v.
func (r *Renderer) Render(v View) ([]image.Image, error) {
	if len(v.Faces) != v.Geometry.Total() {
		return nil, ErrGeometryMismatch
	}
	r.mu.RLock()
	p := r.palette
	r.mu.RUnlock()

	out := make([]image.Image, len(v.Faces))
	for i, f := range v.Faces {
		out[i] = r.key(p, f, v)
	}
	return out, nil
}

func (r *Renderer) key(p Palette, f Face, v View) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, r.size, r.size))
	bg := p.fill(f.Style)
	text := color.RGBA{255, 255, 255, 255}
	if v.Muted {
		bg = dim(bg)
		text = dim(text)
	}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if f.Style == StyleBlank {
		return img
	}

	if v.Accent.A != 0 {
		draw.Draw(img, image.Rect(0, 0, r.size, accentWidth), image.NewUniform(v.Accent), image.Point{}, draw.Src)
	}
	if f.Active {
		frame(img, activeWidth, p.Active)
	}

	lines := wrap(f.Label, r.size-2*padding)
	if f.Sub != "" {
		lines = append(lines, wrap(f.Sub, r.size-2*padding)...)
	}
	maxLines := (r.size - 2*padding) / lineHeight
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	y := (r.size-len(lines)*lineHeight)/2 + lineHeight - 2
	for _, line := range lines {
		drawCentered(img, line, y, text)
		y += lineHeight
	}
	return img
}

func dim(c color.RGBA) color.RGBA {
	return color.RGBA{c.R / 3, c.G / 3, c.B / 3, c.A}
}

func frame(img *image.RGBA, w int, c color.RGBA) {
	b := img.Bounds()
	src := image.NewUniform(c)
	draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-w, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+w, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Max.X-w, b.Min.Y, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
}

func drawCentered(img *image.RGBA, s string, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: bitmapfont.Face,
	}
	w := d.MeasureString(s).Round()
	x := (img.Bounds().Dx() - w) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	d.DrawString(s)
}

// wrap splits s into lines no wider than width pixels, breaking on spaces
// and hard-splitting words that do not fit on their own.
func wrap(s string, width int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	fits := func(t string) bool {
		return font.MeasureString(bitmapfont.Face, t).Round() <= width
	}

	var lines []string
	cur := ""
	for _, word := range strings.Fields(s) {
		for len([]rune(word)) > 1 && !fits(word) {
			n := len([]rune(word))
			cut := n - 1
			for cut > 1 && !fits(string([]rune(word)[:cut])) {
				cut--
			}
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			lines = append(lines, string([]rune(word)[:cut]))
			word = string([]rune(word)[cut:])
		}
		switch {
		case cur == "":
			cur = word
		case fits(cur + " " + word):
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// Tile lays rendered keys out on one canvas using g's row-major order. Panel
// devices with a single screen draw this instead of individual keys.
func Tile(images []image.Image, cols, rows, width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	if cols <= 0 || rows <= 0 {
		return canvas
	}
	cw, ch := width/cols, height/rows
	for i, img := range images {
		if img == nil {
			continue
		}
		r, c := i/cols, i%cols
		dst := image.Rect(c*cw, r*ch, (c+1)*cw, (r+1)*ch)
		draw.ApproxBiLinear.Scale(canvas, dst, img, img.Bounds(), draw.Src, nil)
	}
	return canvas
}
