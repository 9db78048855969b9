package params

import (
	"log"
	"os"
	"reflect"
	"sort"
	"testing"
)

func testDecoder() *Decoder {
	return NewDecoder(log.New(os.Stdout, "[TEST] ", log.LstdFlags))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		raw    string
		want   any
		wantOK bool
	}{
		{name: "empty is absent", key: "anything", raw: "", wantOK: false},
		{name: "null sentinel", key: "anything", raw: "null", wantOK: false},
		{name: "none sentinel case insensitive", key: "anything", raw: "NONE", wantOK: false},
		{name: "no_value sentinel", key: "anything", raw: "NO_VALUE", wantOK: false},
		{name: "enabled suffix true", key: "constraint_x_enabled", raw: "true", want: true, wantOK: true},
		{name: "enabled suffix yes", key: "constraint_x_enabled", raw: "yes", want: true, wantOK: true},
		{name: "enabled suffix numeric one", key: "constraint_x_enabled", raw: "1", want: true, wantOK: true},
		{name: "flag suffix false", key: "triad_flag", raw: "no", want: false, wantOK: true},
		{name: "bool-looking value without suffix", key: "something", raw: "false", want: false, wantOK: true},
		{name: "enabled suffix garbage dropped", key: "constraint_x_enabled", raw: "maybe", wantOK: false},
		{name: "minutes suffix int", key: "minimum_minutes", raw: "45", want: int64(45), wantOK: true},
		{name: "hours suffix float", key: "max_shift_hours", raw: "13.5", want: 13.5, wantOK: true},
		{name: "kwh suffix int stays int", key: "safety_margin_kwh", raw: "5", want: int64(5), wantOK: true},
		{name: "penalty suffix negative", key: "tight_penalty", raw: "-2", want: int64(-2), wantOK: true},
		{name: "numeric suffix garbage dropped", key: "minimum_minutes", raw: "soon", wantOK: false},
		{name: "json object", key: "cost_map", raw: `{"3": 0.42}`, want: map[string]any{"3": 0.42}, wantOK: true},
		{name: "json array", key: "thresholds", raw: `[50, 30]`, want: []any{50.0, 30.0}, wantOK: true},
		{name: "invalid json dropped", key: "cost_map", raw: `{"3": }`, wantOK: false},
		{
			name:   "charger list form stays a string",
			key:    "map",
			raw:    "[1,2]:0.42,[3]:0.55,[DISC]:2",
			want:   "[1,2]:0.42,[3]:0.55,[DISC]:2",
			wantOK: true,
		},
		{
			name:   "period suffix",
			key:    "active_start_period",
			raw:    "22:30",
			want:   TimeOfDay{Hour: 22, Minute: 30},
			wantOK: true,
		},
		{name: "untyped numeric stays a string", key: "whatever", raw: "7", want: "7", wantOK: true},
		{name: "untyped decimal stays a string", key: "whatever", raw: "7.5", want: "7.5", wantOK: true},
		{name: "untyped string", key: "whatever", raw: "first_to_last", want: "first_to_last", wantOK: true},
	}

	dec := testDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dec.Decode(tt.key, tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("Decode(%q, %q) ok = %v, want %v", tt.key, tt.raw, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q, %q) = %#v (%T), want %#v (%T)",
					tt.key, tt.raw, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestConstraintConfig(t *testing.T) {
	p := Parameters{
		"constraint_turnaround_time_strict_enabled":         "true",
		"constraint_turnaround_time_strict_minimum_minutes": "60",
		"constraint_charger_preference_map":                 `{"3": 0.42, "DISC": 0.1}`,
		"constraint_charger_preference_enabled":             "false",
		"unrelated_key":                                     "ignored",
	}

	dec := testDecoder()
	cfg := dec.ConstraintConfig(p, "turnaround_time_strict")
	if got, want := len(cfg), 2; got != want {
		t.Fatalf("ConstraintConfig returned %d fields, want %d: %#v", got, want, cfg)
	}
	if enabled, ok := cfg["enabled"].(bool); !ok || !enabled {
		t.Errorf("enabled = %#v, want true", cfg["enabled"])
	}
	if minutes, ok := cfg["minimum_minutes"].(int64); !ok || minutes != 60 {
		t.Errorf("minimum_minutes = %#v, want 60", cfg["minimum_minutes"])
	}

	// Fields of other constraints must not leak in.
	if _, ok := cfg["map"]; ok {
		t.Error("map from another constraint leaked into the config")
	}
}

func TestConstraintNames(t *testing.T) {
	p := Parameters{
		"constraint_route_overlap_enabled":          "true",
		"constraint_swap_minimization_enabled":      "false",
		"constraint_swap_minimization_bonus_weight": "0.5",
		"not_a_constraint_key":                      "x",
	}

	names := testDecoder().ConstraintNames(p)
	sort.Strings(names)
	want := []string{"route_overlap", "swap_minimization"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("ConstraintNames = %v, want %v", names, want)
	}
}

func TestTypedAccessors(t *testing.T) {
	p := Parameters{
		"reserve_count": "2",
		"target_soc":    "80.5",
		"site_capacity": "150",
		"dry_run_flag":  "yes",
		"mode":          "cumulative",
		"bad_minutes":   "soon",
	}
	dec := testDecoder()

	if got := dec.Int(p, "reserve_count", 9); got != 2 {
		t.Errorf("Int = %d, want 2", got)
	}
	// Keys without a numeric suffix decode to strings; the typed accessors
	// still parse them.
	if got := dec.Int(p, "site_capacity", 0); got != 150 {
		t.Errorf("Int over unsuffixed key = %d, want 150", got)
	}
	if got := dec.Int(p, "missing", 9); got != 9 {
		t.Errorf("Int default = %d, want 9", got)
	}
	if got := dec.Float(p, "target_soc", 75.0); got != 80.5 {
		t.Errorf("Float = %v, want 80.5", got)
	}
	if got := dec.Float(p, "reserve_count", 0); got != 2.0 {
		t.Errorf("Float over int = %v, want 2", got)
	}
	if got := dec.Bool(p, "dry_run_flag", false); !got {
		t.Error("Bool = false, want true")
	}
	if got := dec.String(p, "mode", "first_to_last"); got != "cumulative" {
		t.Errorf("String = %q, want cumulative", got)
	}
	if got := dec.Int(p, "bad_minutes", 30); got != 30 {
		t.Errorf("Int on unparseable value = %d, want default 30", got)
	}
}
