package exchange

import "testing"

func TestFloorToStep(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		step  float64
		want  float64
	}{
		{"exact multiple", 0.5, 0.1, 0.5},
		{"floors remainder", 0.57, 0.1, 0.5},
		{"lot size crumbs", 0.123456789, 0.001, 0.123},
		{"float artifact", 0.1 + 0.2, 0.1, 0.3},
		{"tiny step", 5.000001234, 1e-6, 5.000001},
		{"step larger than value", 0.05, 0.1, 0},
		{"whole number step", 1234.56, 1.0, 1234},
		{"zero step passes through", 0.777, 0, 0.777},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := floorToStep(tt.value, tt.step)
			if got != tt.want {
				t.Errorf("floorToStep(%v, %v) = %v, want %v", tt.value, tt.step, got, tt.want)
			}
		})
	}
}

func TestParseKlineField(t *testing.T) {
	if got := parseKlineField("123.45"); got != 123.45 {
		t.Errorf("parseKlineField(string) = %v, want 123.45", got)
	}
	if got := parseKlineField(123.45); got != 0 {
		t.Errorf("parseKlineField(non-string) = %v, want 0", got)
	}
	if got := parseKlineField("garbage"); got != 0 {
		t.Errorf("parseKlineField(garbage) = %v, want 0", got)
	}
}
