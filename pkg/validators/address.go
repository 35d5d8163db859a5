package validators

import (
	"context"
	"regexp"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
)

const (
	ReasonAddressPOBox              = "address.po_box"
	ReasonAddressPostalCityMismatch = "address.postal_city_mismatch"
	ReasonAddressGeoOutOfBounds     = "address.geo_out_of_bounds"
	ReasonAddressGeocodeFailed      = "address.geocode_failed"
	ReasonAddressMissingFields      = "address.missing_fields"
	ReasonAddressUnsupportedCountry = "address.unsupported_country"
)

var poBoxPattern = regexp.MustCompile(`(?i)\b(p\.?\s*o\.?\s*box|post\s+office\s+box|postal\s+box|apartado(\s+postal)?|caixa\s+postal|postfach)\b`)

// IsPOBox reports whether the line looks like a post office box.
func IsPOBox(line string) bool {
	return poBoxPattern.MatchString(line)
}

// PostalPlace is one reference place for a postal code.
type PostalPlace struct {
	PlaceName string `db:"place_name"`
	AdminCode string `db:"admin_code"`
}

// PostalLookup returns the reference places for a postal code. An empty
// slice means the code is unknown.
type PostalLookup interface {
	LookupPostal(ctx context.Context, country, postalCode string) ([]PostalPlace, error)
}

// AddressResult is the outcome of an address validation.
type AddressResult struct {
	Valid           bool           `json:"valid"`
	Normalized      models.Address `json:"normalized"`
	AddressHash     string         `json:"address_hash"`
	POBox           bool           `json:"po_box"`
	PostalCityMatch bool           `json:"postal_city_match"`
	InBounds        *bool          `json:"in_bounds,omitempty"`
	Geo             *GeoPoint      `json:"geo,omitempty"`
	ReasonCodes     []string       `json:"reason_codes"`
}

// HasIssue reports whether any reason code was raised.
func (r AddressResult) HasIssue() bool {
	return len(r.ReasonCodes) > 0
}

type AddressConfig struct {
	CacheTTL time.Duration
}

type AddressValidator struct {
	postal   PostalLookup
	geocoder Geocoder
	cache    Cache
	logger   ectologger.Logger
	cfg      AddressConfig
}

// NewAddressValidator creates an address validator. postal and geocoder may
// be nil, which disables the corresponding check.
func NewAddressValidator(cfg AddressConfig, postal PostalLookup, geocoder Geocoder, cache Cache, logger ectologger.Logger) *AddressValidator {
	return &AddressValidator{
		postal:   postal,
		geocoder: geocoder,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
	}
}

func (v *AddressValidator) Validate(ctx context.Context, addr models.Address, opts Options) (AddressResult, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	normalized := normalizers.NormalizeAddress(addr)
	hash := normalizers.AddressHash(normalized)
	key := "address:" + hash

	if cached, ok := fromCache[AddressResult](ctx, v.cache, v.logger, "address", key, opts); ok {
		return cached, nil
	}

	result := AddressResult{
		Normalized:      normalized,
		AddressHash:     hash,
		PostalCityMatch: true,
		ReasonCodes:     []string{},
	}

	if normalized.Line1 == "" || normalized.City == "" || normalized.PostalCode == "" || normalized.Country == "" {
		result.ReasonCodes = append(result.ReasonCodes, ReasonAddressMissingFields)
		return result, nil
	}

	if IsPOBox(addr.Line1) || IsPOBox(addr.Line2) {
		result.POBox = true
		result.ReasonCodes = append(result.ReasonCodes, ReasonAddressPOBox)
	}

	cacheable := true

	if v.postal != nil {
		places, err := v.postal.LookupPostal(ctx, normalized.Country, normalized.PostalCode)
		if err != nil {
			cacheable = false
			v.logger.WithContext(ctx).WithError(err).Warn("postal code lookup failed")
		} else if len(places) > 0 && !cityMatches(normalized.City, places) {
			result.PostalCityMatch = false
			result.ReasonCodes = append(result.ReasonCodes, ReasonAddressPostalCityMismatch)
		}
	}

	bounds, supported := CountryBounds(normalized.Country)
	if !supported {
		result.ReasonCodes = append(result.ReasonCodes, ReasonAddressUnsupportedCountry)
	} else if v.geocoder != nil {
		point, err := v.geocoder.Geocode(ctx, addr)
		switch {
		case err != nil:
			cacheable = false
			v.logger.WithContext(ctx).WithError(err).Warn("geocoding failed")
			result.ReasonCodes = append(result.ReasonCodes, ReasonAddressGeocodeFailed)
		case point == nil:
			result.ReasonCodes = append(result.ReasonCodes, ReasonAddressGeocodeFailed)
		default:
			in := bounds.Contains(point.Lat, point.Lon)
			result.Geo = point
			result.InBounds = &in
			if !in {
				result.ReasonCodes = append(result.ReasonCodes, ReasonAddressGeoOutOfBounds)
			}
		}
	}

	// An unsupported country only skips the geo check.
	result.Valid = len(ectolinq.Filter(result.ReasonCodes, func(code string) bool {
		return code != ReasonAddressUnsupportedCountry
	})) == 0

	if cacheable {
		toCache(ctx, v.cache, v.logger, "address", key, result, v.cfg.CacheTTL, opts)
	}
	return result, nil
}

func cityMatches(city string, places []PostalPlace) bool {
	city = normalizers.NormalizeName(city)
	for _, p := range places {
		if normalizers.NormalizeName(p.PlaceName) == city {
			return true
		}
	}
	return false
}
