package validators

// BoundingBox is a coarse latitude/longitude envelope for a country.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// countryBounds covers the countries the geocoder check supports. Overseas
// territories with their own ISO code are listed separately.
var countryBounds = map[string]BoundingBox{
	"US": {MinLat: 18.9, MaxLat: 71.4, MinLon: -179.2, MaxLon: -66.9},
	"CA": {MinLat: 41.7, MaxLat: 83.2, MinLon: -141.0, MaxLon: -52.6},
	"MX": {MinLat: 14.5, MaxLat: 32.7, MinLon: -118.4, MaxLon: -86.7},
	"BR": {MinLat: -33.8, MaxLat: 5.3, MinLon: -74.0, MaxLon: -34.8},
	"AR": {MinLat: -55.1, MaxLat: -21.8, MinLon: -73.6, MaxLon: -53.6},
	"CL": {MinLat: -56.0, MaxLat: -17.5, MinLon: -109.5, MaxLon: -66.4},
	"CO": {MinLat: -4.2, MaxLat: 13.4, MinLon: -81.8, MaxLon: -66.9},
	"PE": {MinLat: -18.4, MaxLat: -0.0, MinLon: -81.4, MaxLon: -68.7},
	"GB": {MinLat: 49.9, MaxLat: 60.9, MinLon: -8.7, MaxLon: 1.8},
	"IE": {MinLat: 51.4, MaxLat: 55.4, MinLon: -10.5, MaxLon: -6.0},
	"DE": {MinLat: 47.3, MaxLat: 55.1, MinLon: 5.9, MaxLon: 15.0},
	"FR": {MinLat: 41.3, MaxLat: 51.1, MinLon: -5.2, MaxLon: 9.6},
	"ES": {MinLat: 27.6, MaxLat: 43.8, MinLon: -18.2, MaxLon: 4.3},
	"PT": {MinLat: 32.6, MaxLat: 42.2, MinLon: -31.3, MaxLon: -6.2},
	"IT": {MinLat: 35.5, MaxLat: 47.1, MinLon: 6.6, MaxLon: 18.5},
	"NL": {MinLat: 50.8, MaxLat: 53.6, MinLon: 3.3, MaxLon: 7.2},
	"BE": {MinLat: 49.5, MaxLat: 51.5, MinLon: 2.5, MaxLon: 6.4},
	"AT": {MinLat: 46.4, MaxLat: 49.0, MinLon: 9.5, MaxLon: 17.2},
	"CH": {MinLat: 45.8, MaxLat: 47.8, MinLon: 5.9, MaxLon: 10.5},
	"PL": {MinLat: 49.0, MaxLat: 54.9, MinLon: 14.1, MaxLon: 24.2},
	"SE": {MinLat: 55.3, MaxLat: 69.1, MinLon: 11.1, MaxLon: 24.2},
	"NO": {MinLat: 57.9, MaxLat: 71.2, MinLon: 4.6, MaxLon: 31.1},
	"DK": {MinLat: 54.5, MaxLat: 57.8, MinLon: 8.0, MaxLon: 15.2},
	"FI": {MinLat: 59.8, MaxLat: 70.1, MinLon: 20.5, MaxLon: 31.6},
	"AU": {MinLat: -43.7, MaxLat: -10.6, MinLon: 113.3, MaxLon: 153.7},
	"NZ": {MinLat: -47.3, MaxLat: -34.4, MinLon: 166.4, MaxLon: 178.6},
	"IN": {MinLat: 6.7, MaxLat: 35.5, MinLon: 68.1, MaxLon: 97.4},
	"JP": {MinLat: 24.2, MaxLat: 45.6, MinLon: 122.9, MaxLon: 153.99},
	"ZA": {MinLat: -34.9, MaxLat: -22.1, MinLon: 16.4, MaxLon: 32.9},
	"AE": {MinLat: 22.6, MaxLat: 26.1, MinLon: 51.5, MaxLon: 56.4},
}

// CountryBounds returns the bounding box for an ISO-3166 alpha-2 code.
func CountryBounds(country string) (BoundingBox, bool) {
	b, ok := countryBounds[country]
	return b, ok
}
