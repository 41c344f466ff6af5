package dwd

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

const (
	// archivePrefix starts every daily-values archive name.
	archivePrefix = "tageswerte_KL_"
	// The five-digit station id follows the prefix: tageswerte_KL_00433_...
	stationIDOffset = len(archivePrefix)
	stationIDWidth  = 5
)

// ParseCatalog extracts archive names from an HTML directory listing. Anchors
// whose href does not start with the archive prefix are ignored, as are names
// whose station id is not numeric. An empty catalog is not an error.
func ParseCatalog(r io.Reader) (domain.Catalog, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: archive listing: %v", domain.ErrParse, err)
	}
	anchors, err := htmlquery.QueryAll(doc, "//a[@href]")
	if err != nil {
		return nil, fmt.Errorf("%w: archive listing: %v", domain.ErrParse, err)
	}

	catalog := make(domain.Catalog)
	for _, a := range anchors {
		href := htmlquery.SelectAttr(a, "href")
		if !strings.HasPrefix(href, archivePrefix) {
			continue
		}
		name := strings.TrimSpace(htmlquery.InnerText(a))
		if !strings.HasPrefix(name, archivePrefix) {
			name = path.Base(href)
		}
		id, ok := archiveStationID(name)
		if !ok {
			continue
		}
		catalog[id] = name
	}
	return catalog, nil
}

func archiveStationID(name string) (int, bool) {
	if len(name) < stationIDOffset+stationIDWidth {
		return 0, false
	}
	id, err := strconv.Atoi(name[stationIDOffset : stationIDOffset+stationIDWidth])
	if err != nil {
		return 0, false
	}
	return id, true
}

// recentArchiveName is the deterministic name of a station's recent archive.
func recentArchiveName(station int) string {
	return fmt.Sprintf("%s%05d_akt.zip", archivePrefix, station)
}
