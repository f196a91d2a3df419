package geo

// RouteGeometry is the read-only shape of a route: ordered waypoints with
// cumulative distances and the schedule's average speed for ETA fallback.
type RouteGeometry struct {
	Waypoints         []Point
	CumulativeMeters  []float64
	TotalMeters       float64
	ScheduledSpeedKmh float64
}

// Estimate maps a raw fix onto route progress.
type Estimate struct {
	WaypointIndex         int
	DistanceCoveredMeters float64
	ProgressPercentage    float64
	EtaNextStopSeconds    float64
	OffsetMeters          float64
	OffRoute              bool
}

// EstimateProgress projects a fix onto the route polyline and derives
// distance covered, progress percentage and ETA to the next waypoint.
// Fixes farther than offRouteThresholdMeters from the polyline are flagged
// OffRoute instead of being silently snapped; the projection values are
// still returned so callers can log where the vehicle would have been.
// Percentage is clamped to [0, 100] regardless of GPS noise.
func EstimateProgress(rt RouteGeometry, fix Point, speedKmh, offRouteThresholdMeters float64) Estimate {
	pts := rt.Waypoints
	if len(pts) == 0 {
		return Estimate{OffRoute: true}
	}
	cum := rt.CumulativeMeters
	if len(cum) != len(pts) {
		cum = CumulativeDistances(pts)
	}
	total := rt.TotalMeters
	if total <= 0 {
		total = cum[len(cum)-1]
	}

	proj := ProjectOntoPolyline(pts, cum, fix)

	est := Estimate{
		WaypointIndex:         proj.SegmentIndex + 1,
		DistanceCoveredMeters: proj.AlongMeters,
		OffsetMeters:          proj.OffsetMeters,
	}
	if total > 0 {
		pct := proj.AlongMeters / total * 100
		if pct < 0 {
			pct = 0
		} else if pct > 100 {
			pct = 100
		}
		est.ProgressPercentage = pct
	}

	if offRouteThresholdMeters > 0 && proj.OffsetMeters > offRouteThresholdMeters {
		est.OffRoute = true
		return est
	}

	// Remaining distance to the next waypoint; at the last waypoint the ETA
	// is zero.
	next := proj.SegmentIndex + 1
	if next >= len(cum) {
		next = len(cum) - 1
	}
	remaining := cum[next] - proj.AlongMeters
	if remaining < 0 {
		remaining = 0
	}
	speed := speedKmh
	if speed <= 0 {
		speed = rt.ScheduledSpeedKmh
	}
	if speed > 0 {
		est.EtaNextStopSeconds = remaining / (speed / 3.6)
	}
	return est
}
