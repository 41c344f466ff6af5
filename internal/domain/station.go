package domain

import (
	"slices"
	"time"
)

// Station is one entry of the DWD station directory.
type Station struct {
	ID        int
	From      time.Time
	To        time.Time
	Elevation int
	Lat       float64
	Lon       float64
	Name      string
	Region    string
}

// RegionIndex maps region names to the ordered set of their station IDs.
// It is immutable after construction.
type RegionIndex struct {
	regions  []string
	stations map[string][]int
}

// NewRegionIndex groups stations by region, preserving the order in which
// regions and stations first appear. Repeated station IDs are kept once.
func NewRegionIndex(stations []Station) *RegionIndex {
	idx := &RegionIndex{stations: make(map[string][]int)}
	seen := make(map[string]map[int]struct{})

	for _, s := range stations {
		ids, ok := seen[s.Region]
		if !ok {
			ids = make(map[int]struct{})
			seen[s.Region] = ids
			idx.regions = append(idx.regions, s.Region)
		}
		if _, dup := ids[s.ID]; dup {
			continue
		}
		ids[s.ID] = struct{}{}
		idx.stations[s.Region] = append(idx.stations[s.Region], s.ID)
	}
	return idx
}

// Stations returns the station IDs of region, in directory order. Unknown or
// empty regions yield nil.
func (x *RegionIndex) Stations(region string) []int {
	return slices.Clone(x.stations[region])
}

// Regions returns every region name found in the directory, in first-seen order.
func (x *RegionIndex) Regions() []string {
	return slices.Clone(x.regions)
}

// Len returns the number of distinct stations across all regions.
func (x *RegionIndex) Len() int {
	n := 0
	for _, ids := range x.stations {
		n += len(ids)
	}
	return n
}
