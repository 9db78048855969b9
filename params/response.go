package params

import (
	"encoding/json"
	"fmt"
)

// Response is the top-level MAF service payload: clients own sites, sites own
// flat parameter lists plus the enabled vehicle set.
type Response struct {
	Clients []Client `json:"clients"`
}

// Client groups the sites of one fleet operator.
type Client struct {
	ClientID int    `json:"client_id"`
	Name     string `json:"name"`
	Sites    []Site `json:"sites"`
}

// Site carries the per-site parameters and enabled vehicles.
type Site struct {
	SiteID          int         `json:"site_id"`
	Name            string      `json:"name"`
	Parameters      []Parameter `json:"parameters"`
	EnabledVehicles []int       `json:"enabled_vehicles"`
}

// Parameter is one raw key/value pair.
type Parameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ParseResponse decodes a raw MAF payload.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode MAF response: %w", err)
	}
	return &resp, nil
}

// SiteParameters flattens the parameter list of one site into a Parameters
// map. The second return is false when the site is not in the response.
func (r *Response) SiteParameters(siteID int) (Parameters, bool) {
	for _, client := range r.Clients {
		for _, site := range client.Sites {
			if site.SiteID != siteID {
				continue
			}
			p := make(Parameters, len(site.Parameters))
			for _, param := range site.Parameters {
				p[param.Key] = param.Value
			}
			return p, true
		}
	}
	return nil, false
}

// EnabledVehicles returns the enabled vehicle ids for a site, or nil when the
// site is absent or has no restriction.
func (r *Response) EnabledVehicles(siteID int) []int {
	for _, client := range r.Clients {
		for _, site := range client.Sites {
			if site.SiteID == siteID {
				return site.EnabledVehicles
			}
		}
	}
	return nil
}
