package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Overlay colors
var (
	personColor  = color.NRGBA{0, 170, 255, 255}
	tableColor   = color.NRGBA{255, 204, 0, 255}
	beanbagColor = color.NRGBA{200, 120, 255, 255}
	usedColor    = color.NRGBA{255, 0, 0, 255}
	freeColor    = color.NRGBA{0, 255, 0, 255}
	labelText    = color.NRGBA{255, 255, 255, 255}
	labelBg      = color.NRGBA{0, 0, 0, 200}
)

// Slot is a furniture item together with its classification, for drawing
type Slot struct {
	Item types.FurnitureItem
	Used bool
}

// Processor handles image loading, encoding and overlay rendering
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImage loads an image from a file path, honoring EXIF orientation.
// WebP is decoded explicitly when the registered decoders fail.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image: unknown format for %s: %w", path, err)
	}
	return img, nil
}

// PrepareImageForModel converts an image to base64 for sending to vision
// models, shrinking it so its long side is at most maxDim. The returned
// scale maps coordinates in the sent image back to the original.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, float64, error) {
	scale := 1.0
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
				scale = float64(w) / float64(img.Bounds().Dx())
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
				scale = float64(h) / float64(img.Bounds().Dy())
			}
		}
	}

	data, err := p.Encode(img, format, quality)
	if err != nil {
		return "", 0, err
	}
	return base64.StdEncoding.EncodeToString(data), scale, nil
}

// Encode serializes img as jpg (default) or png
func (p *Processor) Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Annotate burns detections, furniture classifications and a summary
// header into a copy of img
func (p *Processor) Annotate(img image.Image, detections []types.Detection, slots []Slot, header string) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	stroke := int(math.Max(2, 0.003*float64(minInt(w, h))))

	for _, d := range detections {
		c := personColor
		switch d.Category {
		case types.CategoryTable:
			c = tableColor
		case types.CategoryBeanbag:
			c = beanbagColor
		}
		drawBox(nrgba, d.Box, c, 1)
		if d.Category == types.CategoryPerson {
			x0, y0, _, _ := rectToPixels(d.Box, w, h)
			drawLabel(nrgba, x0, y0, fmt.Sprintf("person %.2f", d.Confidence))
		}
	}

	for _, s := range slots {
		c := freeColor
		state := "free"
		if s.Used {
			c = usedColor
			state = "used"
		}
		drawBox(nrgba, s.Item.Box, c, stroke)
		x0, y0, _, _ := rectToPixels(s.Item.Box, w, h)
		drawLabel(nrgba, x0+stroke, y0+stroke, fmt.Sprintf("%s %s", s.Item.ID, state))
	}

	if header != "" {
		drawLabel(nrgba, 4, 4, header)
	}
	return nrgba
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func rectToPixels(r types.Rect, w, h int) (int, int, int, int) {
	x0 := int(clamp(r.X1, 0, float64(w)) + 0.5)
	y0 := int(clamp(r.Y1, 0, float64(h)) + 0.5)
	x1 := int(clamp(r.X2, 0, float64(w)) + 0.5)
	y1 := int(clamp(r.Y2, 0, float64(h)) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, r types.Rect, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := rectToPixels(r, img.Bounds().Dx(), img.Bounds().Dy())
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawLabel writes text with a dark background box whose top-left is (x, y)
func drawLabel(img *image.NRGBA, x, y int, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	for yy := y; yy < y+height+2; yy++ {
		drawHLine(img, yy, x, x+width+4, labelBg)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot:  fixed.P(x+2, y+1+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
