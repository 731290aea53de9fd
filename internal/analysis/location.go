package analysis

import (
	"math"

	"github.com/nao1215/fisgon/internal/model"
)

// LocationAnalysis summarizes the GPS coordinates embedded in images.
type LocationAnalysis struct {
	TotalFilesWithGPS int          `json:"total_files_with_gps"`
	UniqueLocations   int          `json:"unique_locations"`
	Coordinates       []Coordinate `json:"coordinates_found"`
	Center            *Coordinate  `json:"geographic_center,omitempty"`
	Clusters          []Cluster    `json:"location_clusters,omitempty"`
}

// Coordinate is a decimal latitude and longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Cluster is a group of coordinates close to each other.
type Cluster struct {
	Center      Coordinate   `json:"center"`
	Coordinates []Coordinate `json:"coordinates"`
	Size        int          `json:"size"`
}

// clusterRadius is the grouping distance in degrees, about one kilometer.
const clusterRadius = 0.01

func analyzeLocation(mds []model.Metadata) LocationAnalysis {
	var coords []Coordinate
	seen := make(map[Coordinate]struct{})
	for _, md := range mds {
		lat, lon, ok := md.GPS()
		if !ok {
			continue
		}
		c := Coordinate{Latitude: lat, Longitude: lon}
		coords = append(coords, c)
		seen[c] = struct{}{}
	}

	out := LocationAnalysis{
		TotalFilesWithGPS: len(coords),
		UniqueLocations:   len(seen),
		Coordinates:       coords,
	}
	if len(coords) > 0 {
		center := centroid(coords)
		out.Center = &center
		out.Clusters = Clusters(coords)
	}
	return out
}

// Clusters groups coords greedily: each unassigned point collects every
// later unassigned point within clusterRadius of it. Only groups of two or
// more points are returned.
func Clusters(coords []Coordinate) []Cluster {
	if len(coords) < 2 {
		return nil
	}
	assigned := make([]bool, len(coords))
	var out []Cluster
	for i, a := range coords {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []Coordinate{a}
		for j := i + 1; j < len(coords); j++ {
			if assigned[j] {
				continue
			}
			b := coords[j]
			if math.Hypot(a.Latitude-b.Latitude, a.Longitude-b.Longitude) < clusterRadius {
				group = append(group, b)
				assigned[j] = true
			}
		}
		if len(group) > 1 {
			out = append(out, Cluster{Center: centroid(group), Coordinates: group, Size: len(group)})
		}
	}
	return out
}

func centroid(coords []Coordinate) Coordinate {
	var lat, lon float64
	for _, c := range coords {
		lat += c.Latitude
		lon += c.Longitude
	}
	n := float64(len(coords))
	return Coordinate{Latitude: lat / n, Longitude: lon / n}
}
