package validators

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/httpclient"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

// GeoPoint is a geocoded coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geocoder resolves an address to a coordinate. A nil point with a nil error
// means the address could not be located.
type Geocoder interface {
	Geocode(ctx context.Context, addr models.Address) (*GeoPoint, error)
}

// NominatimGeocoder queries a Nominatim-compatible /search endpoint.
type NominatimGeocoder struct {
	baseURL string
	client  *httpclient.Client
	logger  ectologger.Logger
}

func NewNominatimGeocoder(baseURL string, client *httpclient.Client, logger ectologger.Logger) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, addr models.Address) (*GeoPoint, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("limit", "1")
	query.Set("street", strings.TrimSpace(addr.Line1))
	query.Set("city", addr.City)
	query.Set("postalcode", addr.PostalCode)
	query.Set("countrycodes", strings.ToLower(addr.Country))
	if addr.State != "" {
		query.Set("state", addr.State)
	}

	start := time.Now()
	var places []nominatimPlace
	err := g.client.GetJSON(ctx, g.baseURL+"/search?"+query.Encode(), nil, &places)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		status := "error"
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			status = strconv.Itoa(statusErr.StatusCode)
		}
		metrics.RecordExternalLookup("geocoder", status, elapsed)
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}

	if len(places) == 0 {
		metrics.RecordExternalLookup("geocoder", "not_found", elapsed)
		return nil, nil
	}
	metrics.RecordExternalLookup("geocoder", "ok", elapsed)

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}
	return &GeoPoint{Lat: lat, Lon: lon}, nil
}
