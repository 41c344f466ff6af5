package domain

// Catalog maps station IDs to the filename of their historical archive.
// Stations without a published archive are absent.
type Catalog map[int]string

// Archive returns the historical archive filename of station.
func (c Catalog) Archive(station int) (string, bool) {
	name, ok := c[station]
	return name, ok
}
