package validators

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/httpclient"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
)

// VIESClient checks EU VAT numbers against the VIES REST API.
type VIESClient struct {
	baseURL string
	client  *httpclient.Client
	logger  ectologger.Logger
}

func NewVIESClient(baseURL string, client *httpclient.Client, logger ectologger.Logger) *VIESClient {
	return &VIESClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type viesResponse struct {
	IsValid   bool   `json:"isValid"`
	Name      string `json:"name"`
	UserError string `json:"userError"`
}

func (c *VIESClient) CheckVAT(ctx context.Context, country, number string) (VATCheck, error) {
	endpoint := fmt.Sprintf("%s/ms/%s/vat/%s", c.baseURL, url.PathEscape(country), url.PathEscape(number))

	start := time.Now()
	var resp viesResponse
	err := c.client.GetJSON(ctx, endpoint, nil, &resp)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordExternalLookup("vies", "error", elapsed)
		return VATCheck{}, err
	}

	// VIES reports member-state outages through userError with a 200.
	switch resp.UserError {
	case "", "VALID", "INVALID":
	default:
		metrics.RecordExternalLookup("vies", "unavailable", elapsed)
		return VATCheck{}, fmt.Errorf("vies unavailable: %s", resp.UserError)
	}

	metrics.RecordExternalLookup("vies", "ok", elapsed)
	name := strings.TrimSpace(resp.Name)
	if name == "---" {
		name = ""
	}
	return VATCheck{Valid: resp.IsValid, Name: name}, nil
}
