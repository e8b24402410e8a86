package export

import (
	"fmt"
	"io"
	"os"

	geojson "github.com/paulmach/go.geojson"

	"transit-speeds/internal/segment"
)

// SegmentFeatures renders every built segment as a LineString feature in
// lon/lat, with its stops, arc-length offsets and length as properties.
func SegmentFeatures(shapes []*segment.RouteGeometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range shapes {
		for _, seg := range g.Segments {
			coords := make([][]float64, len(seg.Geometry))
			for i, pt := range seg.Geometry {
				lat, lon := g.Projection.Unproject(pt)
				coords[i] = []float64{lon, lat}
			}
			f := geojson.NewLineStringFeature(coords)
			f.SetProperty("shape_id", seg.ShapeID)
			f.SetProperty("route_id", seg.RouteID)
			f.SetProperty("sequence", seg.Sequence)
			f.SetProperty("from_stop_id", seg.FromStopID)
			f.SetProperty("from_stop_name", seg.FromStopName)
			f.SetProperty("to_stop_id", seg.ToStopID)
			f.SetProperty("to_stop_name", seg.ToStopName)
			f.SetProperty("from_position", seg.FromPosition)
			f.SetProperty("to_position", seg.ToPosition)
			f.SetProperty("length_m", seg.Length)
			fc.AddFeature(f)
		}
	}
	return fc
}

func WriteSegments(w io.Writer, shapes []*segment.RouteGeometry) (int, error) {
	fc := SegmentFeatures(shapes)
	b, err := fc.MarshalJSON()
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(b); err != nil {
		return 0, err
	}
	return len(fc.Features), nil
}

// WriteSegmentsFile writes the segment collection to path, replacing any
// existing file.
func WriteSegmentsFile(path string, shapes []*segment.RouteGeometry) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := WriteSegments(f, shapes)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}
