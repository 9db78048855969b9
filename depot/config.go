// Package depot orchestrates optimization runs for a site: loading inputs,
// running the optimizers, applying the quality gate, and persisting results.
package depot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config represents the configuration for the depot optimization service
type Config struct {
	// Site settings
	SiteID             int     `json:"site_id"`              // Depot site to optimize
	PostgresConnString string  `json:"postgres_conn_string"` // PostgreSQL connection string
	Latitude           float64 `json:"latitude"`             // Site latitude for PV daylight shaping
	Longitude          float64 `json:"longitude"`            // Site longitude for PV daylight shaping

	// Allocation window settings
	AllocationWindowHours float64 `json:"allocation_window_hours"` // Rolling window length (4-24h)
	MaxRoutesPerVehicle   int     `json:"max_routes_per_vehicle"`  // Sequence length cap
	ReserveVehicles       int     `json:"reserve_vehicles"`        // Vehicles held back from allocation
	MinStops              int     `json:"min_stops"`               // Minimum orders for a route to run
	MinQualityScore       float64 `json:"min_quality_score"`       // Quality gate on the total score
	SwapLookbackHours     float64 `json:"swap_lookback_hours"`     // How far back prior allocations count

	// Charge scheduling settings
	PlanningWindowHours      float64       `json:"planning_window_hours"`       // Scheduling horizon (4-24h)
	RouteEnergySafetyFactor  float64       `json:"route_energy_safety_factor"`  // Multiplier on route energy
	MinDepartureBuffer       time.Duration `json:"min_departure_buffer"`        // Unplug margin before departure
	BackToBackThreshold      time.Duration `json:"back_to_back_threshold"`      // Gap below which routes chain
	TargetSOCPercent         float64       `json:"target_soc_percent"`          // End-of-window SOC target
	AgreedSiteCapacityKVA    float64       `json:"agreed_site_capacity_kva"`    // Agreed supply capacity
	PowerFactor              float64       `json:"power_factor"`                // kVA to kW conversion
	SiteUsageFactor          float64       `json:"site_usage_factor"`           // Share of capacity usable for charging
	TriadPenaltyFactor       float64       `json:"triad_penalty_factor"`        // Flat cost added to triad slots
	SyntheticTimePriceFactor float64       `json:"synthetic_time_price_factor"` // Late-charging tie-break factor
	ShortfallPenalty         float64       `json:"shortfall_penalty"`           // Cost per kWh under target

	// Unified optimization settings
	AllocationWeight    float64       `json:"allocation_weight"`     // Alpha in the combined objective
	SchedulingWeight    float64       `json:"scheduling_weight"`     // Beta in the combined objective
	AllocationTimeLimit time.Duration `json:"allocation_time_limit"` // Allocation solve budget
	SchedulingTimeLimit time.Duration `json:"scheduling_time_limit"` // Scheduling solve budget
	IntegratedTimeLimit time.Duration `json:"integrated_time_limit"` // Combined solve budget

	// Service settings
	RunInterval     time.Duration `json:"run_interval"`      // Periodic run cadence in serve mode
	DryRun          bool          `json:"dry_run"`           // Optimize without persisting
	WebServerPort   int           `json:"web_server_port"`   // Status server port (0 = disabled)
	SiteMeterAddr   string        `json:"site_meter_addr"`   // Site meter Modbus address (IP:PORT, empty = disabled)
	MeterPollPeriod time.Duration `json:"meter_poll_period"` // Site meter poll cadence
	PVPeakKW        float64       `json:"pv_peak_kw"`        // Rooftop PV peak power (0 = no PV)
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		AllocationWindowHours:    18.0,
		MaxRoutesPerVehicle:      5,
		ReserveVehicles:          2,
		MinStops:                 1,
		MinQualityScore:          -4.0,
		SwapLookbackHours:        24.0,
		PlanningWindowHours:      24.0,
		RouteEnergySafetyFactor:  1.15,
		MinDepartureBuffer:       60 * time.Minute,
		BackToBackThreshold:      90 * time.Minute,
		TargetSOCPercent:         75.0,
		PowerFactor:              0.85,
		SiteUsageFactor:          0.90,
		TriadPenaltyFactor:       100.0,
		SyntheticTimePriceFactor: 0.01,
		ShortfallPenalty:         1000.0,
		AllocationWeight:         1.0,
		SchedulingWeight:         1.0,
		AllocationTimeLimit:      30 * time.Second,
		SchedulingTimeLimit:      300 * time.Second,
		IntegratedTimeLimit:      330 * time.Second,
		RunInterval:              30 * time.Minute,
		MeterPollPeriod:          10 * time.Second,
		Latitude:                 51.5072, // London
		Longitude:                -0.1276, // London
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}
	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.AllocationWindowHours < 4.0 || c.AllocationWindowHours > 24.0 {
		return fmt.Errorf("allocation_window_hours must be between 4 and 24, got: %f", c.AllocationWindowHours)
	}

	if c.MaxRoutesPerVehicle <= 0 {
		return fmt.Errorf("max_routes_per_vehicle must be greater than 0, got: %d", c.MaxRoutesPerVehicle)
	}

	if c.ReserveVehicles < 0 {
		return fmt.Errorf("reserve_vehicles must be non-negative, got: %d", c.ReserveVehicles)
	}

	if c.PlanningWindowHours < 4.0 || c.PlanningWindowHours > 24.0 {
		return fmt.Errorf("planning_window_hours must be between 4 and 24, got: %f", c.PlanningWindowHours)
	}

	if c.RouteEnergySafetyFactor < 1.0 || c.RouteEnergySafetyFactor > 2.0 {
		return fmt.Errorf("route_energy_safety_factor must be between 1 and 2, got: %f", c.RouteEnergySafetyFactor)
	}

	if c.MinDepartureBuffer < 15*time.Minute || c.MinDepartureBuffer > 180*time.Minute {
		return fmt.Errorf("min_departure_buffer must be between 15m and 3h, got: %s", c.MinDepartureBuffer)
	}

	if c.BackToBackThreshold < 30*time.Minute || c.BackToBackThreshold > 240*time.Minute {
		return fmt.Errorf("back_to_back_threshold must be between 30m and 4h, got: %s", c.BackToBackThreshold)
	}

	if c.TargetSOCPercent < 50.0 || c.TargetSOCPercent > 100.0 {
		return fmt.Errorf("target_soc_percent must be between 50 and 100, got: %f", c.TargetSOCPercent)
	}

	if c.PowerFactor <= 0 || c.PowerFactor > 1 {
		return fmt.Errorf("power_factor must be between 0 and 1, got: %f", c.PowerFactor)
	}

	if c.SiteUsageFactor <= 0 || c.SiteUsageFactor > 1 {
		return fmt.Errorf("site_usage_factor must be between 0 and 1, got: %f", c.SiteUsageFactor)
	}

	if c.TriadPenaltyFactor < 0 {
		return fmt.Errorf("triad_penalty_factor must be non-negative, got: %f", c.TriadPenaltyFactor)
	}

	if c.ShortfallPenalty < 0 {
		return fmt.Errorf("shortfall_penalty must be non-negative, got: %f", c.ShortfallPenalty)
	}

	if c.AllocationWeight < 0 || c.SchedulingWeight < 0 {
		return fmt.Errorf("allocation_weight and scheduling_weight must be non-negative")
	}

	if c.AllocationTimeLimit <= 0 || c.SchedulingTimeLimit <= 0 || c.IntegratedTimeLimit <= 0 {
		return fmt.Errorf("time limits must be greater than 0")
	}

	if c.RunInterval <= 0 {
		return fmt.Errorf("run_interval must be greater than 0, got: %s", c.RunInterval)
	}

	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("web_server_port must be between 0 and 65535, got: %d", c.WebServerPort)
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		MinDepartureBuffer  string `json:"min_departure_buffer"`
		BackToBackThreshold string `json:"back_to_back_threshold"`
		AllocationTimeLimit string `json:"allocation_time_limit"`
		SchedulingTimeLimit string `json:"scheduling_time_limit"`
		IntegratedTimeLimit string `json:"integrated_time_limit"`
		RunInterval         string `json:"run_interval"`
		MeterPollPeriod     string `json:"meter_poll_period"`
	}{
		Alias:               (*Alias)(c),
		MinDepartureBuffer:  c.MinDepartureBuffer.String(),
		BackToBackThreshold: c.BackToBackThreshold.String(),
		AllocationTimeLimit: c.AllocationTimeLimit.String(),
		SchedulingTimeLimit: c.SchedulingTimeLimit.String(),
		IntegratedTimeLimit: c.IntegratedTimeLimit.String(),
		RunInterval:         c.RunInterval.String(),
		MeterPollPeriod:     c.MeterPollPeriod.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		MinDepartureBuffer  string `json:"min_departure_buffer"`
		BackToBackThreshold string `json:"back_to_back_threshold"`
		AllocationTimeLimit string `json:"allocation_time_limit"`
		SchedulingTimeLimit string `json:"scheduling_time_limit"`
		IntegratedTimeLimit string `json:"integrated_time_limit"`
		RunInterval         string `json:"run_interval"`
		MeterPollPeriod     string `json:"meter_poll_period"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.MinDepartureBuffer != "" {
		if c.MinDepartureBuffer, err = time.ParseDuration(aux.MinDepartureBuffer); err != nil {
			return fmt.Errorf("invalid min_departure_buffer: %w", err)
		}
	}

	if aux.BackToBackThreshold != "" {
		if c.BackToBackThreshold, err = time.ParseDuration(aux.BackToBackThreshold); err != nil {
			return fmt.Errorf("invalid back_to_back_threshold: %w", err)
		}
	}

	if aux.AllocationTimeLimit != "" {
		if c.AllocationTimeLimit, err = time.ParseDuration(aux.AllocationTimeLimit); err != nil {
			return fmt.Errorf("invalid allocation_time_limit: %w", err)
		}
	}

	if aux.SchedulingTimeLimit != "" {
		if c.SchedulingTimeLimit, err = time.ParseDuration(aux.SchedulingTimeLimit); err != nil {
			return fmt.Errorf("invalid scheduling_time_limit: %w", err)
		}
	}

	if aux.IntegratedTimeLimit != "" {
		if c.IntegratedTimeLimit, err = time.ParseDuration(aux.IntegratedTimeLimit); err != nil {
			return fmt.Errorf("invalid integrated_time_limit: %w", err)
		}
	}

	if aux.RunInterval != "" {
		if c.RunInterval, err = time.ParseDuration(aux.RunInterval); err != nil {
			return fmt.Errorf("invalid run_interval: %w", err)
		}
	}

	if aux.MeterPollPeriod != "" {
		if c.MeterPollPeriod, err = time.ParseDuration(aux.MeterPollPeriod); err != nil {
			return fmt.Errorf("invalid meter_poll_period: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
