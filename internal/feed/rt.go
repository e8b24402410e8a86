package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transit-speeds/internal/gtfs"
)

var unmarshalOpts = proto.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}

// DecodeVehiclePositions extracts the trip-bound vehicle positions of one
// GTFS-Realtime FeedMessage. Entities without a trip id or position are
// skipped. The header timestamp stands in for a missing vehicle timestamp.
func DecodeVehiclePositions(b []byte) ([]gtfs.PositionReport, error) {
	var fm gtfsrtpb.FeedMessage
	if err := unmarshalOpts.Unmarshal(b, &fm); err != nil {
		return nil, err
	}
	var headerTS uint64
	if fm.Header != nil && fm.Header.Timestamp != nil {
		headerTS = *fm.Header.Timestamp
	}

	var out []gtfs.PositionReport
	for _, e := range fm.Entity {
		vp := e.GetVehicle()
		if vp == nil || vp.GetTrip().GetTripId() == "" || vp.Position == nil {
			continue
		}
		ts := vp.GetTimestamp()
		if ts == 0 {
			ts = headerTS
		}
		if ts == 0 {
			continue
		}
		trip := vp.GetTrip()
		out = append(out, gtfs.PositionReport{
			TripID:    trip.GetTripId(),
			RouteID:   trip.GetRouteId(),
			StartDate: trip.GetStartDate(),
			VehicleID: vp.GetVehicle().GetId(),
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			Lat:       float64(vp.GetPosition().GetLatitude()),
			Lon:       float64(vp.GetPosition().GetLongitude()),
		})
	}
	return out, nil
}

// LoadFeedDir reads every *.pb snapshot for a service date, from
// dir/<YYYYMMDD>/ when that exists and from dir itself otherwise. Reports with
// another start date are dropped and a missing start date is set to
// serviceDate. Repeated observations of the same vehicle at the same instant
// collapse into one.
func LoadFeedDir(dir, serviceDate string) ([]gtfs.PositionReport, error) {
	root := filepath.Join(dir, serviceDate)
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		root = dir
	}
	files, err := filepath.Glob(filepath.Join(root, "*.pb"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	type seenKey struct {
		key gtfs.TripKey
		ts  int64
	}
	seen := make(map[seenKey]struct{})
	var out []gtfs.PositionReport
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		reports, err := DecodeVehiclePositions(b)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(f), err)
		}
		for _, r := range reports {
			if r.StartDate == "" {
				r.StartDate = serviceDate
			}
			if r.StartDate != serviceDate {
				continue
			}
			k := seenKey{r.Key(), r.Timestamp.Unix()}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}
