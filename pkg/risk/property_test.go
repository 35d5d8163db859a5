package risk

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

// signalsFromBits builds a full evaluation's deltas from a bitmask, one bit
// per risk factor.
func signalsFromBits(bits uint16) (Score, bool) {
	on := func(i uint) bool { return bits&(1<<i) != 0 }

	address := validators.AddressResult{Valid: !on(3), Normalized: models.Address{Country: "US"}, ReasonCodes: []string{}}
	if on(4) {
		address.POBox = true
		address.ReasonCodes = append(address.ReasonCodes, validators.ReasonAddressPOBox)
	}
	if on(5) {
		address.ReasonCodes = append(address.ReasonCodes, validators.ReasonAddressPostalCityMismatch)
	}
	if on(6) {
		address.ReasonCodes = append(address.ReasonCodes, validators.ReasonAddressGeoOutOfBounds)
	} else if on(7) {
		address.ReasonCodes = append(address.ReasonCodes, validators.ReasonAddressGeocodeFailed)
	}

	email := validators.EmailResult{Valid: !on(8), Disposable: on(9)}
	phone := validators.PhoneResult{Valid: !on(10), Country: "US"}
	if on(11) {
		phone.Country = "MX"
	}

	customer := models.DedupeResult{}
	if on(1) {
		customer.Matches = []models.Match{{ID: "c", MatchType: models.MatchTypeFuzzyName}}
	}
	addressDedupe := models.DedupeResult{}
	if on(2) {
		addressDedupe.Matches = []models.Match{{ID: "a"}}
	}

	payment := models.PaymentMethodCard
	if on(12) {
		payment = models.PaymentMethodCOD
	}
	amount := decimal.NewFromInt(100)
	if on(13) {
		amount = decimal.NewFromInt(5000)
	}

	mismatch := PhoneCountryMismatch(&phone, address.Normalized.Country)
	s := Fold(
		Duplicate(on(0)),
		CustomerDedupe(customer, "jane@example.com"),
		AddressDedupe(addressDedupe, on(14)),
		Address(address),
		Email(email),
		Phone(phone),
		CountryMismatch(mismatch),
		COD(payment, RTOInput{
			NewCustomer:          !on(1),
			PostalMismatch:       on(5),
			PhoneCountryMismatch: mismatch,
			DisposableEmail:      on(9),
		}),
		HighValue(amount, decimal.NewFromInt(1000)),
	)
	return s, !on(0)
}

func TestProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("final score stays within 0..100", prop.ForAll(
		func(bits uint16, ruleBits uint8) bool {
			s, first := signalsFromBits(bits)
			actions := []models.Action{models.ActionApprove, models.ActionHold, models.ActionBlock, models.ActionReview}
			in := DecisionInput{Amount: decimal.NewFromInt(int64(ruleBits) * 1000), FirstOccurrence: first}
			if ruleBits%5 != 4 {
				a := actions[ruleBits%4]
				in.RuleAction = &a
			}
			out := Decide(s, in, DefaultThresholds())
			return out.Score >= MinScore && out.Score <= MaxScore
		},
		gen.UInt16(),
		gen.UInt8(),
	))

	properties.Property("arbitrary deltas clamp", prop.ForAll(
		func(scores []int, withCap bool) bool {
			deltas := make([]Delta, 0, len(scores))
			for i, n := range scores {
				d := Delta{ScoreDelta: n}
				if withCap && i%3 == 0 {
					d.Cap = Cap(50)
				}
				deltas = append(deltas, d)
			}
			out := Decide(Fold(deltas...), DecisionInput{}, DefaultThresholds())
			return out.Score >= MinScore && out.Score <= MaxScore
		},
		gen.SliceOf(gen.IntRange(-200, 200)),
		gen.Bool(),
	))

	properties.Property("every tag has its reason code", prop.ForAll(
		func(bits uint16) bool {
			s, first := signalsFromBits(bits)
			out := Decide(s, DecisionInput{FirstOccurrence: first}, DefaultThresholds())
			for _, tag := range out.Tags {
				reason, ok := TagReasons[tag]
				if !ok || !containsString(out.ReasonCodes, reason) {
					return false
				}
			}
			return true
		},
		gen.UInt16(),
	))

	properties.Property("first occurrences never exceed the cap once raw passes the trigger", prop.ForAll(
		func(bits uint16) bool {
			s, first := signalsFromBits(bits)
			th := DefaultThresholds()
			out := Decide(s, DecisionInput{FirstOccurrence: first}, th)
			if first && s.Raw > th.FirstOccurrenceCapTrigger {
				return out.Score <= th.FirstOccurrenceCap
			}
			return true
		},
		gen.UInt16(),
	))

	properties.Property("reason codes are unique", prop.ForAll(
		func(bits uint16) bool {
			s, _ := signalsFromBits(bits)
			out := Decide(s, DecisionInput{}, DefaultThresholds())
			return len(Unique(out.ReasonCodes)) == len(out.ReasonCodes)
		},
		gen.UInt16(),
	))

	properties.TestingRun(t)
}

func TestMaximalFirstOccurrenceIsCapped(t *testing.T) {
	s, first := signalsFromBits(0xFFFE)
	out := Decide(s, DecisionInput{FirstOccurrence: first}, DefaultThresholds())

	if !first || s.Raw <= 100 || out.Score != 60 {
		t.Fatalf("expected capped score 60 for raw %d, got %d", s.Raw, out.Score)
	}
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
