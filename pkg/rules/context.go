package rules

import (
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/shopspring/decimal"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

// Risk levels returned by riskLevel().
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// RiskLevel buckets a 0-100 score.
func RiskLevel(score int) string {
	switch {
	case score >= 85:
		return RiskLevelCritical
	case score >= 60:
		return RiskLevelHigh
	case score >= 35:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Context is the flattened evaluation context rules read from. Values are
// JSON-shaped: maps, []any, string, float64, bool and nil.
type Context map[string]any

// ContextInput is everything the orchestrator knows about an order when
// the rules run.
type ContextInput struct {
	Email         *validators.EmailResult
	Phone         *validators.PhoneResult
	Address       *validators.AddressResult
	FirstName     string
	LastName      string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	SessionID     string
	RiskScore     int
	ReasonCodes   []string
	Metadata      map[string]any
}

// NewContext builds the context schema:
//
//	email.{valid,disposable,mx_found,normalized,reason_codes}
//	phone.{valid,e164,country,line_type,reason_codes}
//	address.{valid,po_box,postal_city_match,in_bounds,country,reason_codes}
//	name.{first,last,full}
//	transaction.{amount,currency,payment_method,session_id}
//	risk.{score,level,reason_codes}
//	metadata
func NewContext(in ContextInput) Context {
	ctx := Context{
		"name": map[string]any{
			"first": in.FirstName,
			"last":  in.LastName,
			"full":  strings.TrimSpace(strings.Join([]string{strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)}, " ")),
		},
		"transaction": map[string]any{
			"amount":         in.Amount.InexactFloat64(),
			"currency":       in.Currency,
			"payment_method": in.PaymentMethod,
			"session_id":     in.SessionID,
		},
		"risk": map[string]any{
			"score":        float64(in.RiskScore),
			"level":        RiskLevel(in.RiskScore),
			"reason_codes": toAnySlice(in.ReasonCodes),
		},
		"metadata": in.Metadata,
	}

	if in.Email != nil {
		ctx["email"] = map[string]any{
			"valid":        in.Email.Valid,
			"disposable":   in.Email.Disposable,
			"mx_found":     in.Email.MXFound,
			"normalized":   in.Email.Normalized,
			"reason_codes": toAnySlice(in.Email.ReasonCodes),
		}
	}
	if in.Phone != nil {
		ctx["phone"] = map[string]any{
			"valid":        in.Phone.Valid,
			"e164":         in.Phone.E164,
			"country":      in.Phone.Country,
			"line_type":    in.Phone.LineType,
			"reason_codes": toAnySlice(in.Phone.ReasonCodes),
		}
	}
	if in.Address != nil {
		address := map[string]any{
			"valid":             in.Address.Valid,
			"po_box":            in.Address.POBox,
			"postal_city_match": in.Address.PostalCityMatch,
			"country":           in.Address.Normalized.Country,
			"reason_codes":      toAnySlice(in.Address.ReasonCodes),
		}
		if in.Address.InBounds != nil {
			address["in_bounds"] = *in.Address.InBounds
		}
		ctx["address"] = address
	}
	return ctx
}

// Score returns risk.score.
func (c Context) Score() int {
	v, _ := c.Lookup("risk.score")
	f, _ := toFloat(v)
	return int(f)
}

// Lookup resolves a dot path. Missing segments return (nil, false).
func (c Context) Lookup(path string) (any, bool) {
	var current any = map[string]any(c)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// addressHasIssue is true when the address block is missing, invalid, or
// carries any reason code.
func addressHasIssue(c Context) bool {
	valid, ok := c.Lookup("address.valid")
	if !ok {
		return true
	}
	if b, _ := valid.(bool); !b {
		return true
	}
	codes, _ := c.Lookup("address.reason_codes")
	list, _ := codes.([]any)
	return len(list) > 0
}

func toAnySlice(values []string) []any {
	return ectolinq.Map(values, func(v string) any { return v })
}
