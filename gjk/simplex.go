package gjk

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// subSimplex is the result of projecting the origin on the current simplex: the closest point,
// the vertices it depends on, and its barycentric coordinates over them.
type subSimplex struct {
	closest     mgl64.Vec3
	used        [4]bool
	barycentric [4]float64
	degenerate  bool
}

func (s *subSimplex) reset() {
	s.used = [4]bool{}
	s.barycentric = [4]float64{}
	s.degenerate = false
}

func (s *subSimplex) setBarycentric(a, b, c, d float64) {
	s.barycentric = [4]float64{a, b, c, d}
}

func (s *subSimplex) valid() bool {
	return s.barycentric[0] >= 0 && s.barycentric[1] >= 0 &&
		s.barycentric[2] >= 0 && s.barycentric[3] >= 0
}

// Simplex is a Voronoi region based simplex solver (after Bullet's). It keeps up to four
// Minkowski vertices w = p - q together with the support points p and q they came from, so
// that the closest points on both shapes can be rebuilt from the barycentric coordinates.
type Simplex struct {
	Count int
	W     [4]mgl64.Vec3
	P     [4]mgl64.Vec3
	Q     [4]mgl64.Vec3

	cachedP, cachedQ, cachedV mgl64.Vec3
	lastW                     mgl64.Vec3
	cachedValid               bool
	needsUpdate               bool
	cached                    subSimplex
}

func (s *Simplex) Reset() {
	s.Count = 0
	s.cachedValid = false
	s.needsUpdate = true
	s.lastW = mgl64.Vec3{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}
	s.cached.reset()
}

// SimplexPool recycles solvers between queries.
var SimplexPool = sync.Pool{
	New: func() interface{} {
		return &Simplex{}
	},
}

// AddVertex appends w = p - q.
func (s *Simplex) AddVertex(w, p, q mgl64.Vec3) {
	s.lastW = w
	s.needsUpdate = true

	s.W[s.Count] = w
	s.P[s.Count] = p
	s.Q[s.Count] = q
	s.Count++
}

// InSimplex reports whether w is already a vertex or was the last one added.
func (s *Simplex) InSimplex(w mgl64.Vec3) bool {
	for i := 0; i < s.Count; i++ {
		if s.W[i] == w {
			return true
		}
	}
	return w == s.lastW
}

// Closest returns the point of the simplex closest to the origin. It is false when the simplex
// contains the origin or degenerated.
func (s *Simplex) Closest() (mgl64.Vec3, bool) {
	ok := s.update()
	return s.cachedV, ok
}

// ComputePoints returns the closest points on the two shapes.
func (s *Simplex) ComputePoints() (p, q mgl64.Vec3) {
	s.update()
	return s.cachedP, s.cachedQ
}

func (s *Simplex) removeVertex(index int) {
	s.Count--
	s.W[index] = s.W[s.Count]
	s.P[index] = s.P[s.Count]
	s.Q[index] = s.Q[s.Count]
}

// reduce drops the vertices the closest point does not depend on. Higher indices first, so that
// the swap-remove never moves a vertex that is still to be inspected.
func (s *Simplex) reduce(used [4]bool) {
	for i := 3; i >= 0; i-- {
		if s.Count > i && !used[i] {
			s.removeVertex(i)
		}
	}
}

func (s *Simplex) interpolate() {
	b := s.cached.barycentric
	s.cachedP = mgl64.Vec3{}
	s.cachedQ = mgl64.Vec3{}
	for i := 0; i < s.Count; i++ {
		s.cachedP = s.cachedP.Add(s.P[i].Mul(b[i]))
		s.cachedQ = s.cachedQ.Add(s.Q[i].Mul(b[i]))
	}
	s.cachedV = s.cachedP.Sub(s.cachedQ)
}

func (s *Simplex) update() bool {
	if !s.needsUpdate {
		return s.cachedValid
	}
	s.cached.reset()
	s.needsUpdate = false

	switch s.Count {
	case 0:
		s.cachedValid = false

	case 1:
		s.cached.setBarycentric(1, 0, 0, 0)
		s.cached.used[0] = true
		s.interpolate()
		s.cachedValid = s.cached.valid()

	case 2:
		from, to := s.W[0], s.W[1]
		diff := from.Mul(-1)
		v := to.Sub(from)

		t := v.Dot(diff)
		if t > 0 {
			dotVV := v.Dot(v)
			if t < dotVV {
				t /= dotVV
				s.cached.used[0] = true
				s.cached.used[1] = true
			} else {
				t = 1
				s.cached.used[1] = true
			}
		} else {
			t = 0
			s.cached.used[0] = true
		}

		s.cached.setBarycentric(1-t, t, 0, 0)
		s.cached.closest = from.Add(v.Mul(t))
		s.interpolate()
		s.reduce(s.cached.used)
		s.cachedValid = s.cached.valid()

	case 3:
		closestPointTriangle(mgl64.Vec3{}, s.W[0], s.W[1], s.W[2], &s.cached)
		s.interpolate()
		s.reduce(s.cached.used)
		s.cachedValid = s.cached.valid()

	case 4:
		if closestPointTetrahedron(mgl64.Vec3{}, s.W[0], s.W[1], s.W[2], s.W[3], &s.cached) {
			s.interpolate()
			s.reduce(s.cached.used)
			s.cachedValid = s.cached.valid()
			break
		}

		if s.cached.degenerate {
			s.cachedValid = false
		} else {
			// origin inside the tetrahedron
			s.cachedValid = true
			s.cachedV = mgl64.Vec3{}
		}
	}

	return s.cachedValid
}

// closestPointTriangle is the Voronoi region walk from Ericson, "Real-Time Collision
// Detection", 5.1.5.
func closestPointTriangle(p, a, b, c mgl64.Vec3, result *subSimplex) {
	result.used = [4]bool{}

	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		result.closest = a
		result.used[0] = true
		result.setBarycentric(1, 0, 0, 0)
		return
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		result.closest = b
		result.used[1] = true
		result.setBarycentric(0, 1, 0, 0)
		return
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		result.closest = a.Add(ab.Mul(v))
		result.used[0] = true
		result.used[1] = true
		result.setBarycentric(1-v, v, 0, 0)
		return
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		result.closest = c
		result.used[2] = true
		result.setBarycentric(0, 0, 1, 0)
		return
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		result.closest = a.Add(ac.Mul(w))
		result.used[0] = true
		result.used[2] = true
		result.setBarycentric(1-w, 0, w, 0)
		return
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		result.closest = b.Add(c.Sub(b).Mul(w))
		result.used[1] = true
		result.used[2] = true
		result.setBarycentric(0, 1-w, w, 0)
		return
	}

	// inside the face region
	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	result.closest = a.Add(ab.Mul(v)).Add(ac.Mul(w))
	result.used[0] = true
	result.used[1] = true
	result.used[2] = true
	result.setBarycentric(1-v-w, v, w, 0)
}

// pointOutsideOfPlane tells whether p and d are on opposite sides of plane abc.
// It returns -1 when the tetrahedron is flat.
func pointOutsideOfPlane(p, a, b, c, d mgl64.Vec3) int {
	normal := b.Sub(a).Cross(c.Sub(a))

	signP := p.Sub(a).Dot(normal)
	signD := d.Sub(a).Dot(normal)

	if signD*signD < 1e-8*1e-8 {
		return -1
	}
	if signP*signD < 0 {
		return 1
	}
	return 0
}

// closestPointTetrahedron returns false when p is inside (or the tetrahedron is degenerate,
// which is flagged on result).
func closestPointTetrahedron(p, a, b, c, d mgl64.Vec3, result *subSimplex) bool {
	var temp subSimplex

	result.closest = p
	result.used = [4]bool{true, true, true, true}

	outsideABC := pointOutsideOfPlane(p, a, b, c, d)
	outsideACD := pointOutsideOfPlane(p, a, c, d, b)
	outsideADB := pointOutsideOfPlane(p, a, d, b, c)
	outsideBDC := pointOutsideOfPlane(p, b, d, c, a)

	if outsideABC < 0 || outsideACD < 0 || outsideADB < 0 || outsideBDC < 0 {
		result.degenerate = true
		return false
	}
	if outsideABC == 0 && outsideACD == 0 && outsideADB == 0 && outsideBDC == 0 {
		return false
	}

	best := math.MaxFloat64

	if outsideABC != 0 {
		closestPointTriangle(p, a, b, c, &temp)
		if dist := temp.closest.Sub(p).LenSqr(); dist < best {
			best = dist
			result.closest = temp.closest
			result.used = [4]bool{temp.used[0], temp.used[1], temp.used[2], false}
			bc := temp.barycentric
			result.setBarycentric(bc[0], bc[1], bc[2], 0)
		}
	}

	if outsideACD != 0 {
		closestPointTriangle(p, a, c, d, &temp)
		if dist := temp.closest.Sub(p).LenSqr(); dist < best {
			best = dist
			result.closest = temp.closest
			result.used = [4]bool{temp.used[0], false, temp.used[1], temp.used[2]}
			bc := temp.barycentric
			result.setBarycentric(bc[0], 0, bc[1], bc[2])
		}
	}

	if outsideADB != 0 {
		closestPointTriangle(p, a, d, b, &temp)
		if dist := temp.closest.Sub(p).LenSqr(); dist < best {
			best = dist
			result.closest = temp.closest
			result.used = [4]bool{temp.used[0], temp.used[2], false, temp.used[1]}
			bc := temp.barycentric
			result.setBarycentric(bc[0], bc[2], 0, bc[1])
		}
	}

	if outsideBDC != 0 {
		closestPointTriangle(p, b, d, c, &temp)
		if dist := temp.closest.Sub(p).LenSqr(); dist < best {
			result.closest = temp.closest
			result.used = [4]bool{false, temp.used[0], temp.used[2], temp.used[1]}
			bc := temp.barycentric
			result.setBarycentric(0, bc[0], bc[2], bc[1])
		}
	}

	return true
}
