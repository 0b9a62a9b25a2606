package utils

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "he..."},
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"", 5, ""},
		{"abc", 2, "ab"},
		{"abc", 3, "abc"},
	}

	for _, tt := range tests {
		result := TruncateString(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("TruncateString(%q, %d) = %q; want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123", "123"},
		{"1234", "1,234"},
		{"1234567", "1,234,567"},
		{"1234.56", "1,234.56"},
		{"-1234", "-1,234"},
		{"", ""},
	}

	for _, tt := range tests {
		result := AddCommas(tt.input)
		if result != tt.expected {
			t.Errorf("AddCommas(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func mustWei(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		input    *big.Int
		decimals int
		expected string
	}{
		{nil, 4, "0"},
		{big.NewInt(0), 4, "0"},
		{mustWei("10000000000000000"), 4, "0.01"},
		{mustWei("1500000000000000000"), 4, "1.5"},
		{mustWei("1234000000000000000000"), 2, "1,234"},
		{mustWei("123456789"), -1, "0.000000000123456789"},
		{mustWei("123456789"), 4, "0"},
		{mustWei("19999000000000000"), 2, "0.01"},
	}

	for _, tt := range tests {
		result := FormatEther(tt.input, tt.decimals)
		if result != tt.expected {
			t.Errorf("FormatEther(%v, %d) = %q; want %q", tt.input, tt.decimals, result, tt.expected)
		}
	}
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"0.01", "10000000000000000", false},
		{"1", "1000000000000000000", false},
		{" 2.5 ", "2500000000000000000", false},
		{".5", "500000000000000000", false},
		{"0", "0", false},
		{"0.000000000000000001", "1", false},
		{"0.0000000000000000001", "", true},
		{"-1", "", true},
		{"abc", "", true},
		{"1.2.3", "", true},
		{"", "", true},
		{".", "", true},
	}

	for _, tt := range tests {
		got, err := ParseEther(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseEther(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEther(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseEther(%q) = %s; want %s", tt.input, got, tt.want)
		}
	}
}

func TestShortAddress(t *testing.T) {
	addr := common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
	if got := ShortAddress(addr); got != "0xAb58...eC9B" {
		t.Errorf("ShortAddress() = %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp(0, time.UTC); got != "1970-01-01 00:00:00" {
		t.Errorf("FormatTimestamp(0) = %q", got)
	}
}

func TestWeiToFloat(t *testing.T) {
	if got := WeiToFloat(mustWei("1500000000000000000")); got != 1.5 {
		t.Errorf("WeiToFloat() = %f", got)
	}
	if got := WeiToFloat(nil); got != 0 {
		t.Errorf("WeiToFloat(nil) = %f", got)
	}
}
