package token

import (
	"math/big"
	"testing"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		human    string
		decimals int
		want     string
	}{
		{"1", 6, "1000000"},
		{"1.25", 6, "1250000"},
		{"0.000001", 6, "1"},
		{"0", 18, "0"},
		{"0.5", 18, "500000000000000000"},
		{"1000000", 0, "1000000"},
	}
	for _, tc := range cases {
		got, err := ToBaseUnits(tc.human, tc.decimals)
		if err != nil {
			t.Fatalf("ToBaseUnits(%q, %d) failed: %v", tc.human, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ToBaseUnits(%q, %d) = %s, want %s", tc.human, tc.decimals, got, tc.want)
		}
	}
}

func TestToBaseUnitsRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "abc", "-1", "1.2.3", "1,5", "1e18"} {
		if _, err := ToBaseUnits(input, 6); err == nil {
			t.Fatalf("ToBaseUnits(%q) should fail", input)
		}
	}
}

func TestToBaseUnitsRejectsExcessPrecision(t *testing.T) {
	if _, err := ToBaseUnits("1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
}

func TestToHumanUnits(t *testing.T) {
	cases := []struct {
		base     string
		decimals int
		want     string
	}{
		{"1000000", 6, "1"},
		{"1250000", 6, "1.25"},
		{"1", 6, "0.000001"},
		{"0", 18, "0"},
		{"500000000000000000", 18, "0.5"},
		{"123", 0, "123"},
	}
	for _, tc := range cases {
		base, _ := new(big.Int).SetString(tc.base, 10)
		if got := ToHumanUnits(base, tc.decimals); got != tc.want {
			t.Fatalf("ToHumanUnits(%s, %d) = %s, want %s", tc.base, tc.decimals, got, tc.want)
		}
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, human := range []string{"1", "0.25", "1234.5678"} {
		base, err := ToBaseUnits(human, 8)
		if err != nil {
			t.Fatalf("ToBaseUnits(%q) failed: %v", human, err)
		}
		if got := ToHumanUnits(base, 8); got != human {
			t.Fatalf("round trip %q -> %s", human, got)
		}
	}
}
