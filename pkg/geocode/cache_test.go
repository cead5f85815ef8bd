package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := AddressInput{Street: "200 N 5th St", City: "Garland", State: "TX", ZipCode: "75040"}
	b := AddressInput{Street: "  200 n 5TH   st ", City: "GARLAND", State: "tx", ZipCode: "75040"}

	assert.Equal(t, cacheKey(a), cacheKey(b))
	assert.Len(t, cacheKey(a), 64)
}

func TestCacheKey_DiacriticFolding(t *testing.T) {
	a := AddressInput{Street: "100 Peña Dr", City: "Garland", State: "TX"}
	b := AddressInput{Street: "100 Pena Dr", City: "Garland", State: "TX"}

	assert.Equal(t, cacheKey(a), cacheKey(b))
}

func TestCacheKey_DistinguishesAddresses(t *testing.T) {
	a := AddressInput{Street: "200 N 5th St", City: "Garland", State: "TX"}
	b := AddressInput{Street: "217 N 5th St", City: "Garland", State: "TX"}

	assert.NotEqual(t, cacheKey(a), cacheKey(b))
}

func TestNormalizeComponent(t *testing.T) {
	assert.Equal(t, "200 n 5th st", normalizeComponent("  200  N  5th   St "))
	assert.Equal(t, "pena", normalizeComponent("Peña"))
	assert.Equal(t, "", normalizeComponent("   "))
}
