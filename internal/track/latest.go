package track

import "sort"

// LatestByVehicle reduces records to the max-timestamp record per vehicle.
// Selection is by timestamp, never by slice order, so out-of-order arrival
// of an older fix can never regress the result. Ties keep the record seen
// later in the input, matching the SQL path where equal timestamps are
// broken by insertion order.
func LatestByVehicle(records []PositionRecord) []PositionRecord {
	latest := make(map[string]PositionRecord, len(records))
	for _, r := range records {
		cur, ok := latest[r.VehicleID]
		if !ok || !r.Timestamp.Before(cur.Timestamp) {
			latest[r.VehicleID] = r
		}
	}
	out := make([]PositionRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}
