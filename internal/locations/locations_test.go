package locations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCity(t *testing.T) {
	assert.True(t, ValidCity("Girne"))
	assert.True(t, ValidCity("girne"))
	assert.True(t, ValidCity("  Lefkosa "))
	assert.False(t, ValidCity("Istanbul"))
	assert.False(t, ValidCity(""))
}

func TestValidDistrict(t *testing.T) {
	assert.True(t, ValidDistrict("Girne", "Karakum"))
	assert.True(t, ValidDistrict("girne", "karakum"))
	assert.False(t, ValidDistrict("Girne", "Kyrenia Heights"))
	assert.False(t, ValidDistrict("Istanbul", "Karakum"))
}

func TestValidDistrictAnySentinel(t *testing.T) {
	// "any" is accepted for every known city
	for _, city := range Cities() {
		assert.True(t, ValidDistrict(city, "any"), city)
		assert.True(t, ValidDistrict(city, "ANY"), city)
	}
	assert.False(t, ValidDistrict("Istanbul", "any"), "unknown city stays invalid")
}

func TestCitiesCoversMap(t *testing.T) {
	cities := Cities()
	assert.Len(t, cities, len(CityDistricts))
	for _, city := range cities {
		assert.NotEmpty(t, CityDistricts[city])
	}
}
