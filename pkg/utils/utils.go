package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EtherDecimals is the number of decimals between wei and ether.
const EtherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

func TruncateString(str string, num int) string {
	if len(str) <= num {
		return str
	}
	if num <= 3 {
		return str[:num]
	}
	return str[0:num-3] + "..."
}

func AddCommas(s string) string {
	if len(s) == 0 {
		return s
	}
	parts := strings.Split(s, ".")
	integerPart := parts[0]
	sign := ""
	if strings.HasPrefix(integerPart, "-") {
		sign = "-"
		integerPart = integerPart[1:]
	}

	n := len(integerPart)
	if n <= 3 {
		return s
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := n % 3
	if remainder > 0 {
		result.WriteString(integerPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < n; i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(integerPart[i : i+3])
	}

	if len(parts) > 1 {
		result.WriteString(".")
		result.WriteString(parts[1])
	}
	return result.String()
}

// FormatEther renders a wei amount as ether with trailing zeros trimmed.
// At most maxDecimals fractional digits are kept (truncated, never rounded up);
// a negative maxDecimals keeps full precision. nil renders as "0".
func FormatEther(wei *big.Int, maxDecimals int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	v := new(big.Int).Set(wei)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	whole, frac := new(big.Int).QuoRem(v, weiPerEther, new(big.Int))
	fracStr := frac.String()
	fracStr = strings.Repeat("0", EtherDecimals-len(fracStr)) + fracStr
	if maxDecimals >= 0 && maxDecimals < EtherDecimals {
		fracStr = fracStr[:maxDecimals]
	}
	fracStr = strings.TrimRight(fracStr, "0")
	out := AddCommas(whole.String())
	if fracStr != "" {
		out += "." + fracStr
	}
	if out == "0" {
		return out
	}
	return sign + out
}

// ParseEther converts a decimal ether string such as "0.01" into wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	s = strings.TrimPrefix(s, "+")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, EtherDecimals)
	}
	digits := whole + frac + strings.Repeat("0", EtherDecimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
	}
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return wei, nil
}

// WeiToFloat is lossy and only meant for charts.
func WeiToFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt(weiPerEther))
	val, _ := f.Float64()
	return val
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// FormatTimestamp renders unix seconds in the given location.
func FormatTimestamp(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(ts, 0).In(loc).Format("2006-01-02 15:04:05")
}
