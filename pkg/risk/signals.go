package risk

import (
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/shopspring/decimal"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

// Tags.
const (
	TagDuplicateOrder             = "duplicate_order"
	TagPotentialDuplicateCustomer = "potential_duplicate_customer"
	TagPotentialDuplicateAddress  = "potential_duplicate_address"
	TagPOBoxDetected              = "po_box_detected"
	TagVirtualAddress             = "virtual_address"
	TagInvalidAddress             = "invalid_address"
	TagInvalidEmail               = "invalid_email"
	TagDisposableEmail            = "disposable_email"
	TagInvalidPhone               = "invalid_phone"
	TagCODOrder                   = "cod_order"
	TagHighRiskRTO                = "high_risk_rto"
	TagHighValueOrder             = "high_value_order"
)

// Reason codes.
const (
	ReasonDuplicateDetected    = "order.duplicate_detected"
	ReasonCustomerDedupeMatch  = "order.customer_dedupe_match"
	ReasonAddressDedupeMatch   = "order.address_dedupe_match"
	ReasonPOBoxBlock           = "order.po_box_block"
	ReasonAddressMismatch      = "order.address_mismatch"
	ReasonGeoOutOfBounds       = "order.geo_out_of_bounds"
	ReasonGeocodeFailed        = "order.geocode_failed"
	ReasonInvalidAddress       = "order.invalid_address"
	ReasonInvalidEmail         = "order.invalid_email"
	ReasonDisposableEmail      = "order.disposable_email"
	ReasonInvalidPhone         = "order.invalid_phone"
	ReasonPhoneCountryMismatch = "order.phone_country_mismatch"
	ReasonCODRisk              = "order.cod_risk"
	ReasonHighRiskRTO          = "order.high_risk_rto"
	ReasonHighValue            = "order.high_value"
	ReasonVeryHighValue        = "order.very_high_value"
	ReasonRulesDegraded        = "order.rules_degraded"
)

// TagReasons pairs every tag with the reason code emitted alongside it.
var TagReasons = map[string]string{
	TagDuplicateOrder:             ReasonDuplicateDetected,
	TagPotentialDuplicateCustomer: ReasonCustomerDedupeMatch,
	TagPotentialDuplicateAddress:  ReasonAddressDedupeMatch,
	TagPOBoxDetected:              ReasonPOBoxBlock,
	TagVirtualAddress:             ReasonGeoOutOfBounds,
	TagInvalidAddress:             ReasonInvalidAddress,
	TagInvalidEmail:               ReasonInvalidEmail,
	TagDisposableEmail:            ReasonDisposableEmail,
	TagInvalidPhone:               ReasonInvalidPhone,
	TagCODOrder:                   ReasonCODRisk,
	TagHighRiskRTO:                ReasonHighRiskRTO,
	TagHighValueOrder:             ReasonHighValue,
}

func tagged(score int, tag string) Delta {
	return Delta{ScoreDelta: score, Tags: []string{tag}, ReasonCodes: []string{TagReasons[tag]}}
}

// Duplicate is step 1. A resubmitted order adds 50 with the running score
// capped at 100; a first occurrence caps the running score at 50.
func Duplicate(found bool) Delta {
	if found {
		d := tagged(50, TagDuplicateOrder)
		d.Cap = Cap(100)
		return d
	}
	return Delta{Cap: Cap(50)}
}

// DistinctMatches drops exact_email matches that are just the submitted
// email coming back.
func DistinctMatches(matches []models.Match, email string) []models.Match {
	email = normalizers.NormalizeEmail(email)
	return ectolinq.Filter(matches, func(m models.Match) bool {
		if m.MatchType != models.MatchTypeExactEmail || email == "" {
			return true
		}
		matched, _ := m.Data["email"].(string)
		return normalizers.NormalizeEmail(matched) != email
	})
}

// CustomerDedupe is step 2.
func CustomerDedupe(result models.DedupeResult, email string) Delta {
	if len(DistinctMatches(result.Matches, email)) == 0 {
		return Delta{}
	}
	return tagged(20, TagPotentialDuplicateCustomer)
}

// AddressDedupe is the dedupe half of step 3. A returning customer shipping
// to an address they used before is not penalized.
func AddressDedupe(result models.DedupeResult, returningCustomer bool) Delta {
	if len(result.Matches) == 0 || returningCustomer {
		return Delta{}
	}
	return tagged(15, TagPotentialDuplicateAddress)
}

// Address is the validation half of step 3. Each specific failure adds its
// own weight; the generic invalid penalty only applies when none fired.
func Address(result validators.AddressResult) Delta {
	var deltas []Delta
	if result.POBox {
		deltas = append(deltas, tagged(30, TagPOBoxDetected))
	}
	if validators.HasReason(result.ReasonCodes, validators.ReasonAddressPostalCityMismatch) {
		deltas = append(deltas, Delta{ScoreDelta: 10, ReasonCodes: []string{ReasonAddressMismatch}})
	}
	if validators.HasReason(result.ReasonCodes, validators.ReasonAddressGeoOutOfBounds) {
		deltas = append(deltas, tagged(40, TagVirtualAddress))
	}
	if validators.HasReason(result.ReasonCodes, validators.ReasonAddressGeocodeFailed) {
		deltas = append(deltas, Delta{ScoreDelta: 15, ReasonCodes: []string{ReasonGeocodeFailed}})
	}
	if len(deltas) == 0 && !result.Valid {
		deltas = append(deltas, tagged(20, TagInvalidAddress))
	}
	return Merge(deltas...)
}

// Email is part of step 4. A disposable address counts as an invalid one
// and carries both tags.
func Email(result validators.EmailResult) Delta {
	if result.Valid && !result.Disposable {
		return Delta{}
	}
	d := tagged(20, TagInvalidEmail)
	if result.Disposable {
		d.Tags = append(d.Tags, TagDisposableEmail)
		d.ReasonCodes = append(d.ReasonCodes, ReasonDisposableEmail)
	}
	return d
}

// Phone is part of step 4.
func Phone(result validators.PhoneResult) Delta {
	if result.Valid {
		return Delta{}
	}
	return tagged(20, TagInvalidPhone)
}

// PhoneCountryMismatch reports whether a valid phone's country differs from
// the shipping country.
func PhoneCountryMismatch(phone *validators.PhoneResult, addressCountry string) bool {
	if phone == nil || !phone.Valid || phone.Country == "" || addressCountry == "" {
		return false
	}
	return !strings.EqualFold(phone.Country, addressCountry)
}

// CountryMismatch is the last part of step 4.
func CountryMismatch(mismatch bool) Delta {
	if !mismatch {
		return Delta{}
	}
	return Delta{ScoreDelta: 5, ReasonCodes: []string{ReasonPhoneCountryMismatch}}
}

// RTOInput is what the high-risk return-to-origin check looks at.
type RTOInput struct {
	NewCustomer          bool
	PostalMismatch       bool
	PhoneCountryMismatch bool
	DisposableEmail      bool
}

// COD is step 5. Cash on delivery adds 20, plus 50 when a brand-new
// customer with a disposable email ships somewhere inconsistent.
func COD(method models.PaymentMethod, in RTOInput) Delta {
	if method != models.PaymentMethodCOD {
		return Delta{}
	}
	d := tagged(20, TagCODOrder)
	if in.NewCustomer && (in.PostalMismatch || in.PhoneCountryMismatch) && in.DisposableEmail {
		d = Merge(d, tagged(50, TagHighRiskRTO))
	}
	return d
}

// HighValue is step 6.
func HighValue(amount, threshold decimal.Decimal) Delta {
	if !amount.GreaterThan(threshold) {
		return Delta{}
	}
	return tagged(15, TagHighValueOrder)
}
