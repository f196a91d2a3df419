package geo

import "math"

const earthRadiusMeters = 6371000.0

type Point struct {
	Lat float64
	Lon float64
}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// CumulativeDistances returns the running distance along a polyline,
// starting at 0 for the first point.
func CumulativeDistances(pts []Point) []float64 {
	n := len(pts)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += HaversineMeters(pts[i-1], pts[i])
		cum[i] = sum
	}
	return cum
}

// BearingDeg returns the initial bearing from a to b in [0, 360).
func BearingDeg(a, b Point) float64 {
	y := math.Sin(toRad(b.Lon-a.Lon)) * math.Cos(toRad(b.Lat))
	x := math.Cos(toRad(a.Lat))*math.Sin(toRad(b.Lat)) - math.Sin(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Cos(toRad(b.Lon-a.Lon))
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// Projection is the result of snapping a fix onto a polyline.
type Projection struct {
	SegmentIndex int     // index i of the segment pts[i]..pts[i+1]
	AlongMeters  float64 // cumulative distance at the projected point
	OffsetMeters float64 // distance from the fix to the projected point
}

// ProjectOntoPolyline finds the closest point on the polyline to p using an
// equirectangular approximation for segment projection (good enough at
// route scale) and haversine-derived cumulative distances.
func ProjectOntoPolyline(pts []Point, cum []float64, p Point) Projection {
	n := len(pts)
	if n == 0 {
		return Projection{OffsetMeters: math.MaxFloat64}
	}
	if len(cum) != n {
		cum = CumulativeDistances(pts)
	}
	if n == 1 {
		return Projection{AlongMeters: 0, OffsetMeters: HaversineMeters(pts[0], p)}
	}
	cosLat := math.Cos(toRad(p.Lat))
	toXY := func(q Point) (x, y float64) {
		y = toRad(q.Lat-p.Lat) * earthRadiusMeters
		x = toRad(q.Lon-p.Lon) * earthRadiusMeters * cosLat
		return
	}
	best := Projection{OffsetMeters: math.MaxFloat64}
	x0, y0 := toXY(pts[0])
	for i := 1; i < n; i++ {
		x1, y1 := toXY(pts[i])
		dx := x1 - x0
		dy := y1 - y0
		segLen2 := dx*dx + dy*dy
		t := 0.0
		if segLen2 > 0 {
			// projection of the origin (the fix) onto the segment
			t = -(x0*dx + y0*dy) / segLen2
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
		}
		px := x0 + t*dx
		py := y0 + t*dy
		off := math.Sqrt(px*px + py*py)
		if off < best.OffsetMeters {
			best = Projection{
				SegmentIndex: i - 1,
				AlongMeters:  cum[i-1] + t*(cum[i]-cum[i-1]),
				OffsetMeters: off,
			}
		}
		x0, y0 = x1, y1
	}
	return best
}

// InterpolateAlong returns the point and bearing at the given distance
// along the polyline, clamping to the endpoints.
func InterpolateAlong(pts []Point, cum []float64, dist float64) (Point, float64) {
	n := len(pts)
	if n == 0 {
		return Point{}, 0
	}
	if len(cum) != n {
		cum = CumulativeDistances(pts)
	}
	total := cum[n-1]
	if total == 0 || dist <= 0 {
		if n > 1 {
			return pts[0], BearingDeg(pts[0], pts[1])
		}
		return pts[0], 0
	}
	if dist >= total {
		return pts[n-1], BearingDeg(pts[n-2], pts[n-1])
	}
	i := 1
	for i < n && cum[i] < dist {
		i++
	}
	if i >= n {
		i = n - 1
	}
	d0, d1 := cum[i-1], cum[i]
	p0, p1 := pts[i-1], pts[i]
	if d1 == d0 {
		return p0, BearingDeg(p0, p1)
	}
	frac := (dist - d0) / (d1 - d0)
	return Point{
		Lat: p0.Lat + (p1.Lat-p0.Lat)*frac,
		Lon: p0.Lon + (p1.Lon-p0.Lon)*frac,
	}, BearingDeg(p0, p1)
}
