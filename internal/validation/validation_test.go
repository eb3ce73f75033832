package validation

import (
	"math"
	"strings"
	"testing"
)

func TestValidateBinID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"BIN-001", false},
		{"campus.north_2", false},
		{"site:7", false},
		{"Müll-3", false},
		{"", true},
		{".hidden", true},
		{"..", true},
		{"a/b", true},
		{"a\\b", true},
		{"bins+", true},
		{"#", true},
		{"two words", true},
		{"tab\there", true},
		{strings.Repeat("x", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateBinID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBinID(%q): expected error=%v, got %v", tt.id, tt.wantErr, err)
			}
		})
	}
}

func TestValidateNameRules(t *testing.T) {
	strict := NameRules{MinLength: 2, MaxLength: 8, AllowHyphens: true}

	if err := ValidateName("a", strict); err == nil {
		t.Error("expected error for short name")
	}
	if err := ValidateName("a_b", strict); err == nil {
		t.Error("expected error for underscore")
	}
	if err := ValidateName("a-b", strict); err != nil {
		t.Errorf("expected a-b to be valid, got %v", err)
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "'plain'"},
		{"it's", "'it''s'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := QuoteLiteral(tt.in); got != tt.want {
			t.Errorf("QuoteLiteral(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestValidateHours(t *testing.T) {
	tests := []struct {
		h       float64
		wantErr bool
	}{
		{0, false},
		{24, false},
		{720, false},
		{720.5, true},
		{-1, true},
		{math.NaN(), true},
		{math.Inf(1), true},
		{math.Inf(-1), true},
		{1e300, true},
	}

	for _, tt := range tests {
		err := ValidateHours(tt.h, 720)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateHours(%v): expected error=%v, got %v", tt.h, tt.wantErr, err)
		}
	}
}
