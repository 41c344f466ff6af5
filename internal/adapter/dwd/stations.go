package dwd

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

// stationColumns is the header of the station directory. Newer listings
// append an "Abgabe" (licensing) column, which is accepted and ignored.
var stationColumns = []string{
	"Stations_id", "von_datum", "bis_datum", "Stationshoehe",
	"geoBreite", "geoLaenge", "Stationsname", "Bundesland",
}

const dateLayout = "20060102"

// ParseStations reads the fixed-width ISO-8859-1 station directory. The
// first line is the header, the second a dashed separator; both are
// validated and skipped.
func ParseStations(r io.Reader) ([]domain.Station, error) {
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !sc.Scan() {
		return nil, fmt.Errorf("%w: station directory: empty listing", domain.ErrParse)
	}
	header := strings.Fields(sc.Text())
	trailing, err := checkStationHeader(header)
	if err != nil {
		return nil, err
	}
	if !sc.Scan() || !strings.HasPrefix(strings.TrimSpace(sc.Text()), "-") {
		return nil, fmt.Errorf("%w: station directory: missing separator line", domain.ErrParse)
	}

	var stations []domain.Station
	line := 2
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		st, err := parseStationLine(strings.Fields(text), trailing)
		if err != nil {
			return nil, fmt.Errorf("%w: station directory line %d: %v", domain.ErrParse, line, err)
		}
		stations = append(stations, st)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: station directory: %v", domain.ErrParse, err)
	}
	return stations, nil
}

// checkStationHeader validates the header and returns the number of columns
// following the region column.
func checkStationHeader(header []string) (int, error) {
	n := len(stationColumns)
	if len(header) < n || !slices.Equal(header[:n], stationColumns) {
		return 0, fmt.Errorf("%w: station directory: unexpected header %q", domain.ErrParse, strings.Join(header, " "))
	}
	return len(header) - n, nil
}

// parseStationLine splits a data row. The six leading numeric columns are
// single tokens; the name may contain spaces, so the region is located from
// the right.
func parseStationLine(fields []string, trailing int) (domain.Station, error) {
	regionAt := len(fields) - 1 - trailing
	if regionAt < 7 {
		return domain.Station{}, fmt.Errorf("expected at least %d columns, got %d", 8+trailing, len(fields))
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return domain.Station{}, fmt.Errorf("station id %q: %w", fields[0], err)
	}
	from, err := time.Parse(dateLayout, fields[1])
	if err != nil {
		return domain.Station{}, fmt.Errorf("von_datum %q: %w", fields[1], err)
	}
	to, err := time.Parse(dateLayout, fields[2])
	if err != nil {
		return domain.Station{}, fmt.Errorf("bis_datum %q: %w", fields[2], err)
	}
	elevation, err := strconv.Atoi(fields[3])
	if err != nil {
		return domain.Station{}, fmt.Errorf("Stationshoehe %q: %w", fields[3], err)
	}
	lat, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return domain.Station{}, fmt.Errorf("geoBreite %q: %w", fields[4], err)
	}
	lon, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return domain.Station{}, fmt.Errorf("geoLaenge %q: %w", fields[5], err)
	}

	return domain.Station{
		ID:        id,
		From:      from,
		To:        to,
		Elevation: elevation,
		Lat:       lat,
		Lon:       lon,
		Name:      strings.Join(fields[6:regionAt], " "),
		Region:    fields[regionAt],
	}, nil
}
