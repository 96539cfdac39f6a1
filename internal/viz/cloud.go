package viz

import (
	"math"

	"github.com/san-kum/lidarsim/internal/geom"
)

// Camera orbits a point cloud around its centroid.
type Camera struct {
	Yaw, Pitch float64
	Zoom       float64
	Distance   float64 // in cloud radii
}

func NewCamera() *Camera {
	return &Camera{Pitch: -0.6, Zoom: 1, Distance: 4}
}

func (c *Camera) Orbit(dyaw, dpitch float64) {
	c.Yaw = math.Mod(c.Yaw+dyaw, 2*math.Pi)
	c.Pitch = math.Max(-math.Pi/2, math.Min(math.Pi/2, c.Pitch+dpitch))
}

func (c *Camera) ZoomIn()  { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut() { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// rotate turns p about Z by yaw and then about X by pitch.
func (c *Camera) rotate(p geom.Vec3) geom.Vec3 {
	cy, sy := math.Cos(c.Yaw), math.Sin(c.Yaw)
	p.X, p.Y = p.X*cy-p.Y*sy, p.X*sy+p.Y*cy
	cp, sp := math.Cos(c.Pitch), math.Sin(c.Pitch)
	p.Y, p.Z = p.Y*cp-p.Z*sp, p.Y*sp+p.Z*cp
	return p
}

// Project maps p, relative to the cloud centre and scaled to unit radius,
// onto a w×h dot grid. Points behind the camera are not visible.
func (c *Camera) Project(p geom.Vec3, w, h int) (x, y int, visible bool) {
	r := c.rotate(p)
	depth := c.Distance - r.Y
	if depth <= 0.1 {
		return 0, 0, false
	}
	scale := c.Zoom * c.Distance / depth * float64(min(w, h)) / 2.2
	x = int(r.X*scale) + w/2
	y = int(-r.Z*scale) + h/2
	return x, y, x >= 0 && x < w && y >= 0 && y < h
}

// RenderCloud draws pts as seen by cam.
func RenderCloud(c *Canvas, pts []geom.Vec3, cam *Camera) {
	if len(pts) == 0 {
		return
	}
	var centre geom.Vec3
	for _, p := range pts {
		centre = centre.Add(p)
	}
	centre = centre.Scale(1 / float64(len(pts)))
	radius := 0.0
	for _, p := range pts {
		radius = math.Max(radius, p.Distance(centre))
	}
	if radius == 0 {
		radius = 1
	}

	w, h := c.Dots()
	for _, p := range pts {
		if x, y, ok := cam.Project(p.Sub(centre).Scale(1/radius), w, h); ok {
			c.Set(x, y)
		}
	}
}

// RenderMap draws pts top-down and the track as a connected line.
func RenderMap(c *Canvas, pts, track []geom.Vec3) {
	all := make([]geom.Vec3, 0, len(pts)+len(track))
	all = append(all, pts...)
	all = append(all, track...)
	vp := FitViewport(all...)

	for _, p := range pts {
		c.Set(vp.Dot(c, p))
	}
	for i := 1; i < len(track); i++ {
		x0, y0 := vp.Dot(c, track[i-1])
		x1, y1 := vp.Dot(c, track[i])
		c.DrawLine(x0, y0, x1, y1)
	}
}
