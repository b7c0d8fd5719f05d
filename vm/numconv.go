package vm

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Number <-> string
// ---------------------------------------------------------------------------

// NumberToString formats d the way ECMAScript's Number::toString does:
// shortest round-tripping digits, plain notation for exponents in
// [-6, 21), exponential notation otherwise.
func NumberToString(d float64) string {
	switch {
	case math.IsNaN(d):
		return "NaN"
	case d == 0:
		return "0"
	case math.IsInf(d, 1):
		return "Infinity"
	case math.IsInf(d, -1):
		return "-Infinity"
	case d < 0:
		return "-" + NumberToString(-d)
	}

	// "d.ddddde±xx" -> digits and decimal exponent n, value = 0.digits * 10^n
	sci := strconv.FormatFloat(d, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(sci, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expPart)
	k := len(digits)
	n := exp + 1

	var b strings.Builder
	switch {
	case k <= n && n <= 21:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", n-k))
	case 0 < n && n <= 21:
		b.WriteString(digits[:n])
		b.WriteByte('.')
		b.WriteString(digits[n:])
	case -6 < n && n <= 0:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -n))
		b.WriteString(digits)
	default:
		b.WriteByte(digits[0])
		if k > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if n-1 >= 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(n - 1))
	}
	return b.String()
}

// isJSSpace reports whether r is WhiteSpace or a LineTerminator.
func isJSSpace(r rune) bool {
	switch r {
	case '\t', '\v', '\f', ' ', '\u00A0', '\uFEFF', '\n', '\r', '\u2028', '\u2029':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// StringToNumber converts s with the StringNumericLiteral grammar: optional
// surrounding white space, then empty (0), Infinity with optional sign, a
// 0x hex integer, or a decimal literal. Anything else is NaN.
func StringToNumber(s string) float64 {
	s = strings.TrimFunc(s, isJSSpace)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return parseHex(s[2:])
	}
	if !isDecimalLiteral(s) {
		return math.NaN()
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil && !math.IsInf(d, 0) {
		return math.NaN()
	}
	return d
}

func parseHex(s string) float64 {
	var d float64
	for _, c := range s {
		var digit int
		switch {
		case c >= '0' && c <= '9':
			digit = int(c - '0')
		case c >= 'a' && c <= 'f':
			digit = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			digit = int(c-'A') + 10
		default:
			return math.NaN()
		}
		d = d*16 + float64(digit)
	}
	return d
}

// isDecimalLiteral matches [+-]? (digits [. digits?] | . digits) ([eE] [+-]? digits)?
func isDecimalLiteral(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	intDigits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		intDigits++
	}
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			fracDigits++
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		expDigits := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			expDigits++
		}
		if expDigits == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// ---------------------------------------------------------------------------
// ECMA integer conversions
// ---------------------------------------------------------------------------

// DoubleToInt32 implements ECMAScript ToInt32: truncate, then wrap modulo
// 2^32. NaN and infinities become 0.
func DoubleToInt32(d float64) int32 {
	return int32(DoubleToUint32(d))
}

// DoubleToUint32 implements ECMAScript ToUint32.
func DoubleToUint32(d float64) uint32 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	d = math.Trunc(d)
	if d >= 0 && d <= math.MaxUint32 {
		return uint32(d)
	}
	m := math.Mod(d, 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return uint32(m)
}

// DoubleToUint16 implements ECMAScript ToUint16.
func DoubleToUint16(d float64) uint16 {
	return uint16(DoubleToUint32(d))
}

// parseIndex reports whether s is a canonical non-negative decimal integer
// small enough for an int key.
func parseIndex(chars []uint16) (int32, bool) {
	if len(chars) == 0 || len(chars) > 10 {
		return 0, false
	}
	if chars[0] == '0' && len(chars) > 1 {
		return 0, false
	}
	var n int64
	for _, c := range chars {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if n > int64(KeyMaxInt) {
		return 0, false
	}
	return int32(n), true
}
