package dwd

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-climate-etl/internal/adapter/dwd/dwdtest"
	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

func TestExtractProduct(t *testing.T) {
	archive := dwdtest.StationArchive(t, 433, dwdtest.Day{Date: "20230101", TempMean: "4.2"})

	product, err := ExtractProduct(archive)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(product), dwdtest.ProductHeader))
}

func TestExtractProduct_Errors(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		_, err := ExtractProduct([]byte("<html>404</html>"))
		assert.True(t, errors.Is(err, domain.ErrParse))
	})

	t.Run("no product file", func(t *testing.T) {
		archive := dwdtest.Archive(t, map[string]string{"Metadaten_Geographie_00433.txt": "x"})
		_, err := ExtractProduct(archive)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrParse))
		assert.Contains(t, err.Error(), "no produkt*.txt")
	})

	t.Run("two product files", func(t *testing.T) {
		archive := dwdtest.Archive(t, map[string]string{
			"produkt_klima_tag_a.txt": "x",
			"produkt_klima_tag_b.txt": "y",
		})
		_, err := ExtractProduct(archive)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrParse))
	})
}

func TestParseProduct(t *testing.T) {
	product := dwdtest.Product(433,
		dwdtest.Day{Date: "20230101", TempMean: "4.2", HumidityMean: "88.00", TempMax: "7.1", TempMin: "1.0", SunshineDuration: "0.500", WindSpeed: "3.4"},
		dwdtest.Day{Date: "20230102", TempMean: "-999", HumidityMean: "", TempMax: "-999.0", TempMin: "-3.5", SunshineDuration: "-999", WindSpeed: "-999"},
	)

	records, err := ParseProduct(strings.NewReader(product), domain.PhaseRecent)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, 433, first.StationID)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, domain.PhaseRecent, first.Phase)
	assert.Equal(t, 4.2, *first.TempMean)
	assert.Equal(t, 88.0, *first.HumidityMean)
	assert.Equal(t, 7.1, *first.TempMax)
	assert.Equal(t, 1.0, *first.TempMin)
	assert.Equal(t, 0.5, *first.SunshineDuration)
	assert.Equal(t, 3.4, *first.WindSpeed)

	// Sentinels are kept as read; empty cells are nil.
	second := records[1]
	assert.Equal(t, domain.MissingSentinel, *second.TempMean)
	assert.Equal(t, domain.MissingSentinel, *second.TempMax)
	assert.Nil(t, second.HumidityMean)
	assert.Equal(t, -3.5, *second.TempMin)
}

func TestParseProduct_MissingColumn(t *testing.T) {
	product := "STATIONS_ID;MESS_DATUM; TMK; UPM;eor\n        433;20230101;   1.0;  80.0;eor\n"
	_, err := ParseProduct(strings.NewReader(product), domain.PhaseHistorical)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrParse))
	assert.Contains(t, err.Error(), "TXK")
	assert.Contains(t, err.Error(), "FM")
}

func TestParseProduct_BadValues(t *testing.T) {
	cases := map[string]dwdtest.Day{
		"bad date":  {Date: "2023-01-01", TempMean: "1.0"},
		"bad value": {Date: "20230101", TempMean: "warm"},
	}
	for name, day := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProduct(strings.NewReader(dwdtest.Product(433, day)), domain.PhaseHistorical)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrParse))
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}
