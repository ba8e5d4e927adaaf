package sqlengine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var integerTypes = map[string]bool{
	"INT": true, "INTEGER": true, "BIGINT": true, "SMALLINT": true, "TINYINT": true,
	"MEDIUMINT": true, "INT2": true, "INT4": true, "INT8": true, "SERIAL": true, "BIGSERIAL": true,
}

var floatTypes = map[string]bool{
	"FLOAT": true, "FLOAT4": true, "FLOAT8": true, "DOUBLE": true, "REAL": true, "DOUBLE PRECISION": true,
}

func isDecimalType(t string) bool {
	return strings.Contains(t, "DECIMAL") || strings.Contains(t, "NUMERIC") || strings.Contains(t, "MONEY")
}

// NormalizeValue converts driver values into JSON-friendly Go values.
// Exact decimals become float64 and raw bytes become numbers or strings.
func NormalizeValue(v any, dbType string) any {
	t := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(dbType)), "UNSIGNED ")
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(string(x), t)
	case string:
		return normalizeText(x, t)
	case int64, float64, bool, time.Time:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return normalizeText(x.String(), t)
	default:
		return x
	}
}

func normalizeText(s, t string) any {
	switch {
	case isDecimalType(t) || floatTypes[t]:
		if f, ok := ParseNumber(s); ok {
			return f
		}
	case integerTypes[t]:
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i
		}
	}
	return s
}

// ParseNumber accepts plain numbers and money-formatted text such as "$1,234.56".
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
