package rate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/models"
)

// extractRule pulls the rate out of one recognized response key. Inverted
// rules hold the reciprocal quote (stars per TON instead of charts per star).
type extractRule struct {
	key    string
	invert bool
}

// Rules are tried in order; the first key present in the response wins.
var extractRules = []extractRule{
	{key: "rate"},
	{key: "tons_per_star"},
	{key: "value"},
	{key: "stars_per_ton", invert: true},
	{key: "price_per_star"},
}

// ParseResponse extracts a rate from a rate-source response body: either a
// bare JSON number or an object carrying one of the recognized keys.
func ParseResponse(body []byte) (decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed rate response: %s", models.ErrExternalUnavailable, err)
	}

	switch v := raw.(type) {
	case json.Number:
		return toRate(v.String(), false)
	case map[string]interface{}:
		for _, rule := range extractRules {
			field, ok := v[rule.key]
			if !ok {
				continue
			}
			switch fv := field.(type) {
			case json.Number:
				return toRate(fv.String(), rule.invert)
			case string:
				return toRate(fv, rule.invert)
			}
		}
	}
	return decimal.Zero, fmt.Errorf("%w: unrecognized rate response shape", models.ErrExternalUnavailable)
}

func toRate(s string, invert bool) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: non-numeric rate %q", models.ErrExternalUnavailable, s)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", models.ErrExternalUnavailable, v)
	}
	if invert {
		return decimal.NewFromInt(1).DivRound(v, 8), nil
	}
	return v, nil
}
