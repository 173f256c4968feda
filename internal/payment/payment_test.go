package payment

import "testing"

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 80000, want: "800.00"},
		{cents: 80001, want: "800.01"},
		{cents: 99, want: "0.99"},
		{cents: 0, want: "0.00"},
		{cents: -150, want: "-1.50"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "800.00", want: 80000},
		{in: "800", want: 80000},
		{in: "800.5", want: 80050},
		{in: "0.01", want: 1},
		{in: " 800.00 ", want: 80000},
		{in: "-1.50", want: -150},
		{in: "", wantErr: true},
		{in: "800.123", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "123", want: 123},
		{in: "Заказ 456", want: 456},
		{in: "order_789_test", want: 789},
		{in: "no digits", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ExtractOrderID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ExtractOrderID(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractOrderID(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractOrderID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	fk := NewFreeKassa("m1", "s1", "s2")
	registry := NewRegistry(fk)

	p, err := registry.Get("freekassa")
	if err != nil {
		t.Fatalf("Get(freekassa) error = %v", err)
	}
	if p.Name() != "freekassa" {
		t.Errorf("Name() = %q, want freekassa", p.Name())
	}

	if _, err := registry.Get("bogus"); err == nil {
		t.Error("Get(bogus) expected error, got nil")
	}
}
