package survey

import (
	"math"
	"sort"

	"github.com/san-kum/lidarsim/internal/geom"
)

// Material holds the reflectance parameters of a surface.
type Material struct {
	Reflectance float64 // diffuse albedo
	Specularity float64 // ks in [0, 1]
	Shininess   float64 // Ns
}

// Surface is a horizontal layer. Coverage below one lets part of the
// footprint through, which is how vegetation produces multiple returns.
type Surface struct {
	Name     string
	Height   float64 // metres
	Coverage float64 // (0, 1]
	Drift    float64 // vertical motion, m/s
	Material Material
}

// Hit is the intersection of a ray with a scene surface.
type Hit struct {
	Surface  int
	Range    float64
	Point    geom.Vec3
	Incident float64 // radians between the reversed ray and the surface normal
}

// Scene is a stack of horizontal surfaces, sorted top-down.
type Scene struct {
	surfaces []Surface
	step     []float64
}

func NewScene(surfaces ...Surface) *Scene {
	s := &Scene{surfaces: append([]Surface(nil), surfaces...)}
	sort.SliceStable(s.surfaces, func(i, j int) bool {
		return s.surfaces[i].Height > s.surfaces[j].Height
	})
	s.step = make([]float64, len(s.surfaces))
	return s
}

func (s *Scene) Surfaces() []Surface { return s.surfaces }

func (s *Scene) PrepareSimulation(freqHz float64) error {
	for i, surf := range s.surfaces {
		s.step[i] = surf.Drift / freqHz
	}
	return nil
}

// DoSimStep applies one step of surface drift and restores the top-down
// order when drifting surfaces cross.
func (s *Scene) DoSimStep() error {
	for i := range s.surfaces {
		s.surfaces[i].Height += s.step[i]
	}
	if !sort.IsSorted(byHeight{s}) {
		sort.Stable(byHeight{s})
	}
	return nil
}

// byHeight orders surfaces top-down, keeping each drift step with its
// surface.
type byHeight struct{ s *Scene }

func (b byHeight) Len() int { return len(b.s.surfaces) }
func (b byHeight) Less(i, j int) bool {
	return b.s.surfaces[i].Height > b.s.surfaces[j].Height
}
func (b byHeight) Swap(i, j int) {
	b.s.surfaces[i], b.s.surfaces[j] = b.s.surfaces[j], b.s.surfaces[i]
	b.s.step[i], b.s.step[j] = b.s.step[j], b.s.step[i]
}

var upNormal = geom.Vec3{Z: 1}

// Intersect returns the nearest surface hit by the ray within maxRange.
// sample in [0, 1) decides whether partially covered surfaces intercept the
// ray.
func (s *Scene) Intersect(origin, dir geom.Vec3, maxRange, sample float64) (Hit, bool) {
	if dir.Z >= 0 {
		return Hit{}, false
	}
	best, nearest := -1, math.Inf(1)
	for i, surf := range s.surfaces {
		if origin.Z <= surf.Height {
			continue
		}
		if surf.Coverage < 1 && sample >= surf.Coverage {
			continue
		}
		t := (origin.Z - surf.Height) / -dir.Z
		if t > maxRange || t >= nearest {
			continue
		}
		best, nearest = i, t
	}
	if best < 0 {
		return Hit{}, false
	}
	return Hit{
		Surface:  best,
		Range:    nearest,
		Point:    origin.Add(dir.Scale(nearest)),
		Incident: math.Acos(math.Min(1, -dir.Dot(upNormal))),
	}, true
}
