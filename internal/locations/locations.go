package locations

import "strings"

// CityDistricts maps each supported city to its districts.
var CityDistricts = map[string][]string{
	"Lefkosa":    {"Hamitkoy", "Kumsal", "Ortakoy", "Gonyeli", "Metehan"},
	"Girne":      {"Karakum", "Ozankoy", "Catalkoy", "Alsancak", "Lapta"},
	"Gazimagusa": {"Surlarici", "Tuzla", "Karakol", "Dogu Akdeniz", "Maras"},
	"Guzelyurt":  {"Merkez", "Bostanci", "Yayla", "Aydinkoy"},
	"Iskele":     {"Merkez", "Long Beach", "Bogaz", "Mehmetcik"},
	"Lefke":      {"Merkez", "Gemikonagi", "Yedidalga", "Cengizkoy"},
}

// ValidCity reports whether the city is supported, case-insensitive.
func ValidCity(city string) bool {
	_, ok := canonicalCity(city)
	return ok
}

// ValidDistrict reports whether the district belongs to the city. The "any"
// sentinel is always valid.
func ValidDistrict(city, district string) bool {
	canonical, ok := canonicalCity(city)
	if !ok {
		return false
	}
	district = strings.TrimSpace(district)
	if strings.EqualFold(district, "any") {
		return true
	}
	for _, d := range CityDistricts[canonical] {
		if strings.EqualFold(d, district) {
			return true
		}
	}
	return false
}

// Cities returns the supported city names in a stable order.
func Cities() []string {
	cities := make([]string, 0, len(CityDistricts))
	for _, city := range []string{"Lefkosa", "Girne", "Gazimagusa", "Guzelyurt", "Iskele", "Lefke"} {
		cities = append(cities, city)
	}
	return cities
}

func canonicalCity(city string) (string, bool) {
	city = strings.TrimSpace(city)
	for name := range CityDistricts {
		if strings.EqualFold(name, city) {
			return name, true
		}
	}
	return "", false
}
