package params

import "testing"

const sampleResponse = `{
	"clients": [
		{
			"client_id": 1,
			"name": "Fleet Co",
			"sites": [
				{
					"site_id": 10,
					"name": "North Depot",
					"parameters": [
						{"key": "target_soc_percent", "value": "80"},
						{"key": "turnaround_time_strict_enabled", "value": "true"}
					],
					"enabled_vehicles": [101, 102]
				},
				{
					"site_id": 11,
					"name": "South Depot",
					"parameters": [],
					"enabled_vehicles": []
				}
			]
		}
	]
}`

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(resp.Clients) != 1 || len(resp.Clients[0].Sites) != 2 {
		t.Fatalf("parsed %d clients, want 1 with 2 sites", len(resp.Clients))
	}

	if _, err := ParseResponse([]byte("{broken")); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestSiteParameters(t *testing.T) {
	resp, err := ParseResponse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	p, ok := resp.SiteParameters(10)
	if !ok {
		t.Fatal("site 10 not found")
	}
	if p["target_soc_percent"] != "80" {
		t.Errorf("target_soc_percent = %q, want 80", p["target_soc_percent"])
	}
	if len(p) != 2 {
		t.Errorf("parameter count = %d, want 2", len(p))
	}

	if _, ok := resp.SiteParameters(99); ok {
		t.Error("unknown site reported parameters")
	}
}

func TestEnabledVehicles(t *testing.T) {
	resp, err := ParseResponse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	got := resp.EnabledVehicles(10)
	if len(got) != 2 || got[0] != 101 || got[1] != 102 {
		t.Errorf("EnabledVehicles(10) = %v, want [101 102]", got)
	}
	if got := resp.EnabledVehicles(99); got != nil {
		t.Errorf("EnabledVehicles(99) = %v, want nil", got)
	}
}
