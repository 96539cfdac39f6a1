// Package export renders stored runs as images.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/lidarsim/internal/sim"
)

// MapSVG draws a top-down map of a run: returns as dots coloured from low
// (blue) to high (red) and the platform track as a line. The aspect ratio
// of the scene is kept.
func MapSVG(w io.Writer, ms []sim.Measurement, track []sim.Trajectory, size int) error {
	if len(ms) == 0 && len(track) < 2 {
		return fmt.Errorf("export: nothing to draw")
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	extend := func(x, y float64) {
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	for _, m := range ms {
		extend(m.Position.X, m.Position.Y)
		minZ, maxZ = math.Min(minZ, m.Position.Z), math.Max(maxZ, m.Position.Z)
	}
	for _, t := range track {
		extend(t.Position.X, t.Position.Y)
	}

	side := math.Max(math.Max(maxX-minX, maxY-minY), 1) * 1.1
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	scale := float64(size) / side
	px := func(x float64) float64 { return (x-cx)*scale + float64(size)/2 }
	py := func(y float64) float64 { return float64(size)/2 - (y-cy)*scale }
	zSpan := maxZ - minZ
	if zSpan == 0 {
		zSpan = 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="none">
`, size, size, size, size)

	for _, m := range ms {
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="1" fill="%s"/>
`, px(m.Position.X), py(m.Position.Y), heightColor((m.Position.Z-minZ)/zSpan))
	}
	sb.WriteString("</g>\n")

	if len(track) >= 2 {
		sb.WriteString(`<path fill="none" stroke="#ffffff" stroke-width="1.5" d="`)
		for i, t := range track {
			op := " L"
			if i == 0 {
				op = "M"
			}
			fmt.Fprintf(&sb, "%s%.1f,%.1f", op, px(t.Position.X), py(t.Position.Y))
		}
		sb.WriteString("\"/>\n")
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// heightColor maps t in [0, 1] from blue through green to red.
func heightColor(t float64) string {
	t = math.Max(0, math.Min(1, t))
	var r, g, b float64
	if t < 0.5 {
		g, b = t*2, 1-t*2
	} else {
		r, g = (t-0.5)*2, 1-(t-0.5)*2
	}
	return fmt.Sprintf("#%02x%02x%02x", int(r*255), int(g*255), int(b*255))
}
