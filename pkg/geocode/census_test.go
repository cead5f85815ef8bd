package geocode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCensusBatchResponse(t *testing.T) {
	body := `"0","200 N 5TH ST, GARLAND, TX, 75040","Match","Exact","200 N 5TH ST, GARLAND, TX, 75040","-96.6389,32.9126","12345","L"
"1","000 NOWHERE, FAKETOWN, XX","No_Match"
"2","217 N 5TH ST, GARLAND, TX","Match","Non_Exact","217 N 5TH ST, GARLAND, TX, 75040","-96.6391,32.9128","12346","R"
`

	idToIdx := map[string]int{"0": 0, "1": 1, "2": 2}
	results, err := parseCensusBatchResponse(strings.NewReader(body), idToIdx, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Matched)
	assert.Equal(t, "rooftop", results[0].Quality)
	assert.InDelta(t, -96.6389, results[0].Longitude, 1e-6)
	assert.InDelta(t, 32.9126, results[0].Latitude, 1e-6)

	assert.False(t, results[1].Matched)

	assert.True(t, results[2].Matched)
	assert.Equal(t, "range", results[2].Quality)
}

func TestParseCensusBatchResponse_UnknownID(t *testing.T) {
	body := `"99","SOMEWHERE","Match","Exact","SOMEWHERE","-96.6,32.9","1","L"
`
	results, err := parseCensusBatchResponse(strings.NewReader(body), map[string]int{"0": 0}, 1)
	require.NoError(t, err)
	assert.False(t, results[0].Matched)
}

func TestParseCensusCoords(t *testing.T) {
	lon, lat, err := parseCensusCoords("-96.6389,32.9126")
	require.NoError(t, err)
	assert.Equal(t, -96.6389, lon)
	assert.Equal(t, 32.9126, lat)

	_, _, err = parseCensusCoords("garbage")
	require.Error(t, err)

	_, _, err = parseCensusCoords("a,b")
	require.Error(t, err)
}

func TestFormatOneLine(t *testing.T) {
	addr := AddressInput{Street: "200 N 5th St", City: "Garland", State: "TX", ZipCode: "75040"}
	assert.Equal(t, "200 N 5th St, Garland, TX, 75040", formatOneLine(addr))

	sparse := AddressInput{Street: " 200 N 5th St ", State: "TX"}
	assert.Equal(t, "200 N 5th St, TX", formatOneLine(sparse))
}

func TestCensusBatchQuality(t *testing.T) {
	assert.Equal(t, "rooftop", censusBatchQuality("Exact"))
	assert.Equal(t, "range", censusBatchQuality("Non_Exact"))
	assert.Equal(t, "range", censusBatchQuality(""))
}
