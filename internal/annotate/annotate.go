// Package annotate draws recognition results onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Green is the box and label colour.
var Green = color.RGBA{G: 255, A: 255}

const (
	boxThickness   = 2
	labelOffset    = 10
	distanceOffset = 30
)

// Face is one box to draw.
type Face struct {
	Box      image.Rectangle
	Label    string
	Distance float64
	Matched  bool // the distance is only drawn for matched faces
}

// Draw returns a copy of img with a box around every face, the label 10px above
// the box and, when showDistance is set, the distance of matched faces 30px above it.
func Draw(img image.Image, faces []Face, showDistance bool) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	for _, f := range faces {
		drawBox(dst, f.Box, Green)
		drawText(dst, f.Box.Min.X, f.Box.Min.Y-labelOffset, f.Label, Green)
		if showDistance && f.Matched {
			drawText(dst, f.Box.Min.X, f.Box.Min.Y-distanceOffset, fmt.Sprintf("%.2f", f.Distance), Green)
		}
	}
	return dst
}

func drawBox(dst draw.Image, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+boxThickness),
		image.Rect(r.Min.X, r.Max.Y-boxThickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxThickness, r.Max.Y),
		image.Rect(r.Max.X-boxThickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawText writes s with its baseline at (x, y). Text above the top edge is clamped into view.
func drawText(dst draw.Image, x, y int, s string, c color.Color) {
	face := basicfont.Face7x13
	minY := dst.Bounds().Min.Y + face.Ascent
	if y < minY {
		y = minY
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
