// Package dwdtest builds canned open-data fixtures: station listings, folder
// indexes, and zipped product files, plus a fake portal serving them.
package dwdtest

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/charmap"
)

// StationHeader is the two-line header of the station directory.
const StationHeader = "Stations_id von_datum bis_datum Stationshoehe geoBreite geoLaenge Stationsname Bundesland Abgabe\n" +
	"----------- --------- --------- ------------- --------- --------- ----------------------------------------- ---------- ------\n"

// ProductHeader is the header row of a KL product file.
const ProductHeader = "STATIONS_ID;MESS_DATUM;QN_3;  FX;  FM;QN_4; RSK;RSKF; SDK;SHK_TAG;  NM; VPM;  PM; TMK; UPM; TXK; TNK; TGK;eor"

// Station is one row of a fixture station listing.
type Station struct {
	ID     int
	Name   string
	Region string
}

// StationListing renders stations in the fixed-width directory layout,
// encoded as ISO-8859-1.
func StationListing(t testing.TB, stations ...Station) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString(StationHeader)
	for _, s := range stations {
		fmt.Fprintf(&b, "%05d 19470101 20240101 %14d %11.4f %9.4f %-40s %-40s Frei\n",
			s.ID, 48, 52.4537, 13.3017, s.Name, s.Region)
	}
	encoded, err := charmap.ISO8859_1.NewEncoder().String(b.String())
	if err != nil {
		t.Fatalf("encode station listing: %v", err)
	}
	return []byte(encoded)
}

// Day is one row of a fixture product file. Values are written verbatim, so
// "-999" produces a sentinel and "" an empty cell.
type Day struct {
	Date             string
	TempMean         string
	HumidityMean     string
	TempMax          string
	TempMin          string
	SunshineDuration string
	WindSpeed        string
}

// Product renders a product file for station.
func Product(station int, days ...Day) string {
	var b strings.Builder
	b.WriteString(ProductHeader + "\n")
	for _, d := range days {
		fmt.Fprintf(&b, "%11d;%s;   10;  -999;%6s;    3;   0.0;   0;%6s;   0;  -999;  10.1; 1010.2;%6s;%6s;%6s;%6s;  -999;eor\n",
			station, d.Date, d.WindSpeed, d.SunshineDuration, d.TempMean, d.HumidityMean, d.TempMax, d.TempMin)
	}
	return b.String()
}

// Archive zips files (name to content) into an in-memory archive.
func Archive(t testing.TB, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

// StationArchive zips a product file together with a metadata member, the
// way DWD ships them.
func StationArchive(t testing.TB, station int, days ...Day) []byte {
	t.Helper()
	return Archive(t, map[string]string{
		fmt.Sprintf("Metadaten_Geographie_%05d.txt", station):                "Stations_id;Stationshoehe\n",
		fmt.Sprintf("produkt_klima_tag_19470101_20231231_%05d.txt", station): Product(station, days...),
	})
}

// HistoricalName is the archive filename DWD uses for a station's history.
func HistoricalName(station int) string {
	return fmt.Sprintf("tageswerte_KL_%05d_19470101_20231231_hist.zip", station)
}

// FolderIndex renders an Apache-style directory listing linking names.
func FolderIndex(names ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Index of historical/</title></head><body><h1>Index of historical/</h1><pre>")
	b.WriteString(`<a href="../">../</a>` + "\n")
	for _, n := range names {
		fmt.Fprintf(&b, "<a href=%q>%s</a>                 01-Jan-2024 10:00   123456\n", n, n)
	}
	b.WriteString("</pre><hr></body></html>")
	return b.String()
}

// Portal is a fake open-data server. Paths not registered answer 404.
type Portal struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	failures map[string]int
	requests map[string]int
}

// NewPortal starts a fake portal; it is closed when the test ends.
func NewPortal(t testing.TB) *Portal {
	t.Helper()
	p := &Portal{
		files:    make(map[string][]byte),
		failures: make(map[string]int),
		requests: make(map[string]int),
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

// BaseURL is the dataset root to hand to a client.
func (p *Portal) BaseURL() string {
	return p.URL + "/kl/"
}

// Put registers content under a path relative to the dataset root.
func (p *Portal) Put(path string, content []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files["/kl/"+path] = content
}

// FailWith makes path answer status 503 for the next n requests.
func (p *Portal) FailWith(path string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures["/kl/"+path] = n
}

// Requests returns how often path was requested.
func (p *Portal) Requests(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests["/kl/"+path]
}

func (p *Portal) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests[r.URL.Path]++
	if n := p.failures[r.URL.Path]; n > 0 {
		p.failures[r.URL.Path] = n - 1
		p.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	body, ok := p.files[r.URL.Path]
	p.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(body)
}
