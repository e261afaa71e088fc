package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/risk"
)

// hostingKeywords mark ISPs that are datacenters rather than residential networks.
var hostingKeywords = []string{
	"cloud", "hosting", "datacenter", "data center", "server", "colo",
	"digitalocean", "aws", "amazon", "google", "azure", "hetzner", "ovh", "linode", "vultr",
}

// providerResponse is the JSON document returned by the lookup endpoint.
type providerResponse struct {
	Country     string   `json:"country"`
	City        string   `json:"city"`
	ISP         string   `json:"isp"`
	VPN         bool     `json:"vpn"`
	Proxy       bool     `json:"proxy"`
	Hosting     bool     `json:"hosting"`
	Confidence  *float64 `json:"confidence"`
	RiskFactors []string `json:"risk_factors"`
}

// HTTPClient queries a JSON geolocation endpoint. The URL may contain an {ip}
// placeholder; otherwise the address is appended as a path segment.
type HTTPClient struct {
	baseURL           string
	client            *http.Client
	highRiskCountries []string
}

func NewHTTPClient(baseURL string, timeout time.Duration, highRiskCountries []string) *HTTPClient {
	upper := make([]string, 0, len(highRiskCountries))
	for _, c := range highRiskCountries {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(c)))
	}
	return &HTTPClient{
		baseURL:           baseURL,
		client:            &http.Client{Timeout: timeout},
		highRiskCountries: upper,
	}
}

func (c *HTTPClient) endpoint(ip string) string {
	escaped := url.PathEscape(ip)
	if strings.Contains(c.baseURL, "{ip}") {
		return strings.ReplaceAll(c.baseURL, "{ip}", escaped)
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + escaped
}

func (c *HTTPClient) Lookup(ctx context.Context, ip string) (*models.GeoLocation, error) {
	if !Routable(ip) {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ip), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("%w: status %s: %s", ErrLookupFailed, resp.Status, strings.TrimSpace(string(raw)))
	}

	var pr providerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}

	return c.toLocation(pr), nil
}

func (c *HTTPClient) toLocation(pr providerResponse) *models.GeoLocation {
	loc := &models.GeoLocation{
		IsVPN:       pr.VPN || pr.Proxy,
		Country:     pr.Country,
		City:        pr.City,
		RiskFactors: make([]string, 0, len(pr.RiskFactors)+2),
	}

	for _, f := range pr.RiskFactors {
		if f = strings.ToUpper(strings.TrimSpace(f)); f != "" && !slices.Contains(loc.RiskFactors, f) {
			loc.RiskFactors = append(loc.RiskFactors, f)
		}
	}
	if slices.Contains(c.highRiskCountries, strings.ToUpper(pr.Country)) &&
		!slices.Contains(loc.RiskFactors, risk.RiskFactorHighRiskCountry) {
		loc.RiskFactors = append(loc.RiskFactors, risk.RiskFactorHighRiskCountry)
	}
	if (pr.Hosting || isHostingISP(pr.ISP)) && !slices.Contains(loc.RiskFactors, risk.RiskFactorHostingProvider) {
		loc.RiskFactors = append(loc.RiskFactors, risk.RiskFactorHostingProvider)
	}

	switch {
	case pr.Confidence != nil:
		loc.Confidence = min(max(*pr.Confidence, 0), 1)
	case pr.Country != "" && pr.City != "":
		loc.Confidence = 0.8
	case pr.Country != "":
		loc.Confidence = 0.5
	}

	return loc
}

func isHostingISP(isp string) bool {
	lower := strings.ToLower(isp)
	if lower == "" {
		return false
	}
	for _, kw := range hostingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
