package viz

import (
	"strings"

	"github.com/san-kum/lidarsim/internal/geom"
)

const brailleBlank = 0x2800

// dot bits of a braille cell, indexed [row][col]
var brailleDots = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Canvas is a grid of braille cells, each holding 2x4 dots. Dot coordinates
// run from (0, 0) at the top left to (2*Width-1, 4*Height-1).
type Canvas struct {
	Width, Height int
	cells         [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Dots returns the canvas size in dots.
func (c *Canvas) Dots() (w, h int) { return c.Width * 2, c.Height * 4 }

func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.cells[row][col] |= brailleDots[y%4][x%2]
}

// Lit reports whether the dot at (x, y) is set.
func (c *Canvas) Lit(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.cells[y/4][x/2]&brailleDots[y%4][x%2] != 0
}

func (c *Canvas) Clear() {
	for _, row := range c.cells {
		for j := range row {
			row[j] = brailleBlank
		}
	}
}

// DrawLine draws a Bresenham line between two dots.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps the XY plane of the scene onto canvas dots, north up.
type Viewport struct {
	MinX, MinY, MaxX, MaxY float64
}

// FitViewport returns the square viewport enclosing pts with a small margin.
func FitViewport(pts ...geom.Vec3) Viewport {
	if len(pts) == 0 {
		return Viewport{-1, -1, 1, 1}
	}
	v := Viewport{pts[0].X, pts[0].Y, pts[0].X, pts[0].Y}
	for _, p := range pts[1:] {
		v.MinX, v.MaxX = min(v.MinX, p.X), max(v.MaxX, p.X)
		v.MinY, v.MaxY = min(v.MinY, p.Y), max(v.MaxY, p.Y)
	}
	side := max(v.MaxX-v.MinX, v.MaxY-v.MinY, 1) * 1.1
	cx, cy := (v.MinX+v.MaxX)/2, (v.MinY+v.MaxY)/2
	return Viewport{cx - side/2, cy - side/2, cx + side/2, cy + side/2}
}

// Dot returns the canvas dot for world point p.
func (v Viewport) Dot(c *Canvas, p geom.Vec3) (int, int) {
	w, h := c.Dots()
	x := (p.X - v.MinX) / (v.MaxX - v.MinX) * float64(w-1)
	y := (v.MaxY - p.Y) / (v.MaxY - v.MinY) * float64(h-1)
	return int(x + 0.5), int(y + 0.5)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
