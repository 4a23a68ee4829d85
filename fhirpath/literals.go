package fhirpath

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// parseInt32Literal and parseInt64Literal convert the lexer's raw integer
// token text into the Integer/Long primitives, matching the teacher's
// evalLiteral NumberLiteralContext/LongNumberLiteralContext handling
// (fhirpath/expression.go): Integer is bound to 32 bits even though it is
// stored as int64 internally.
func parseInt32Literal(text string) (int32, error) {
	v, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func parseInt64Literal(text string) (int64, error) {
	text = strings.TrimSuffix(text, "L")
	return strconv.ParseInt(text, 10, 64)
}

// apdFromDecimalText parses a decimal literal's raw token text directly,
// preserving its exact textual precision (unlike apdFromFloat, which
// reconstructs text from a float64 already stripped of trailing zeros).
func apdFromDecimalText(text string) (*apd.Decimal, apd.Condition, error) {
	return apd.NewFromString(text)
}
