package validators

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
)

const (
	ReasonTaxIDInvalidFormat       = "taxid.invalid_format"
	ReasonTaxIDInvalidChecksum     = "taxid.invalid_checksum"
	ReasonTaxIDUnsupportedType     = "taxid.unsupported_type"
	ReasonTaxIDRegistryInvalid     = "taxid.registry_invalid"
	ReasonTaxIDRegistryUnavailable = "taxid.registry_unavailable"
)

// TaxIDType names a supported identifier scheme.
type TaxIDType string

const (
	TaxIDEIN  TaxIDType = "ein"
	TaxIDCPF  TaxIDType = "cpf"
	TaxIDCNPJ TaxIDType = "cnpj"
	TaxIDNIF  TaxIDType = "nif"
	TaxIDRFC  TaxIDType = "rfc"
	TaxIDBN   TaxIDType = "bn"
	TaxIDVAT  TaxIDType = "vat"
)

// TaxIDInput is a tax identifier to validate. Country is required for VAT
// numbers without a country prefix.
type TaxIDInput struct {
	Type    TaxIDType `json:"type" validate:"required"`
	Value   string    `json:"value" validate:"required"`
	Country string    `json:"country,omitempty" validate:"omitempty,len=2"`
}

// TaxIDResult is the outcome of a tax id validation.
type TaxIDResult struct {
	Valid        bool     `json:"valid"`
	Normalized   string   `json:"normalized"`
	Type         string   `json:"type"`
	RegistryName string   `json:"registry_name,omitempty"`
	ReasonCodes  []string `json:"reason_codes"`
}

// VATRegistry confirms an EU VAT number with the issuing member state.
type VATRegistry interface {
	CheckVAT(ctx context.Context, country, number string) (VATCheck, error)
}

type VATCheck struct {
	Valid bool
	Name  string
}

type TaxIDConfig struct {
	CacheTTL time.Duration
}

type TaxIDValidator struct {
	registry VATRegistry
	cache    Cache
	logger   ectologger.Logger
	cfg      TaxIDConfig
}

// NewTaxIDValidator creates a tax id validator. registry may be nil.
func NewTaxIDValidator(cfg TaxIDConfig, registry VATRegistry, cache Cache, logger ectologger.Logger) *TaxIDValidator {
	return &TaxIDValidator{
		registry: registry,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
	}
}

func (v *TaxIDValidator) Validate(ctx context.Context, input TaxIDInput, opts Options) (TaxIDResult, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	taxType := TaxIDType(strings.ToLower(strings.TrimSpace(string(input.Type))))
	country := strings.ToUpper(strings.TrimSpace(input.Country))
	value := normalizers.Alphanumeric(strings.ToUpper(input.Value))
	key := fmt.Sprintf("taxid:%s:%s:%s", taxType, country, value)

	if cached, ok := fromCache[TaxIDResult](ctx, v.cache, v.logger, "taxid", key, opts); ok {
		return cached, nil
	}

	result := TaxIDResult{Normalized: value, Type: string(taxType), ReasonCodes: []string{}}

	var code string
	switch taxType {
	case TaxIDEIN:
		code = checkEIN(value)
	case TaxIDCPF:
		code = checkCPF(value)
	case TaxIDCNPJ:
		code = checkCNPJ(value)
	case TaxIDNIF:
		code = checkSpanishID(value)
	case TaxIDRFC:
		code = checkRFC(value)
	case TaxIDBN:
		code = checkBN(value)
	case TaxIDVAT:
		var vatCountry, number string
		vatCountry, number, code = splitVAT(value, country)
		if code == "" {
			result.Normalized = vatCountry + number
			return v.checkRegistry(ctx, result, key, vatCountry, number, opts), nil
		}
	default:
		code = ReasonTaxIDUnsupportedType
	}

	if code != "" {
		result.ReasonCodes = append(result.ReasonCodes, code)
	} else {
		result.Valid = true
	}
	toCache(ctx, v.cache, v.logger, "taxid", key, result, v.cfg.CacheTTL, opts)
	return result, nil
}

func (v *TaxIDValidator) checkRegistry(ctx context.Context, result TaxIDResult, key, country, number string, opts Options) TaxIDResult {
	result.Valid = true
	if v.registry == nil {
		toCache(ctx, v.cache, v.logger, "taxid", key, result, v.cfg.CacheTTL, opts)
		return result
	}

	check, err := v.registry.CheckVAT(ctx, country, number)
	if err != nil {
		v.logger.WithContext(ctx).WithError(err).Warnf("VAT registry check failed for %s", country)
		result.ReasonCodes = append(result.ReasonCodes, ReasonTaxIDRegistryUnavailable)
		return result
	}

	if !check.Valid {
		result.Valid = false
		result.ReasonCodes = append(result.ReasonCodes, ReasonTaxIDRegistryInvalid)
	}
	result.RegistryName = check.Name
	toCache(ctx, v.cache, v.logger, "taxid", key, result, v.cfg.CacheTTL, opts)
	return result
}

func digits(s string) ([]int, bool) {
	out := make([]int, len(s))
	for i, r := range s {
		if r < '0' || r > '9' {
			return nil, false
		}
		out[i] = int(r - '0')
	}
	return out, true
}

func allSame(d []int) bool {
	for _, x := range d[1:] {
		if x != d[0] {
			return false
		}
	}
	return true
}

// IRS campus prefixes that have never been assigned.
var invalidEINPrefixes = map[string]struct{}{
	"00": {}, "07": {}, "08": {}, "09": {}, "17": {}, "18": {}, "19": {},
	"28": {}, "29": {}, "49": {}, "69": {}, "70": {}, "78": {}, "79": {},
	"89": {}, "96": {}, "97": {},
}

func checkEIN(value string) string {
	if len(value) != 9 {
		return ReasonTaxIDInvalidFormat
	}
	if _, ok := digits(value); !ok {
		return ReasonTaxIDInvalidFormat
	}
	if _, bad := invalidEINPrefixes[value[:2]]; bad {
		return ReasonTaxIDInvalidChecksum
	}
	return ""
}

func checkCPF(value string) string {
	d, ok := digits(value)
	if !ok || len(d) != 11 {
		return ReasonTaxIDInvalidFormat
	}
	if allSame(d) {
		return ReasonTaxIDInvalidChecksum
	}

	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += d[i] * (n + 1 - i)
		}
		check := sum * 10 % 11
		if check == 10 {
			check = 0
		}
		if check != d[n] {
			return ReasonTaxIDInvalidChecksum
		}
	}
	return ""
}

func checkCNPJ(value string) string {
	d, ok := digits(value)
	if !ok || len(d) != 14 {
		return ReasonTaxIDInvalidFormat
	}
	if allSame(d) {
		return ReasonTaxIDInvalidChecksum
	}

	weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	for _, n := range []int{12, 13} {
		w := weights[13-n:]
		sum := 0
		for i := 0; i < n; i++ {
			sum += d[i] * w[i]
		}
		check := 0
		if r := sum % 11; r >= 2 {
			check = 11 - r
		}
		if check != d[n] {
			return ReasonTaxIDInvalidChecksum
		}
	}
	return ""
}

const nifLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

var (
	dniPattern = regexp.MustCompile(`^[0-9]{8}[A-Z]$`)
	niePattern = regexp.MustCompile(`^[XYZ][0-9]{7}[A-Z]$`)
	cifPattern = regexp.MustCompile(`^[ABCDEFGHJNPQRSUVW][0-9]{7}[0-9A-J]$`)
)

// checkSpanishID validates a DNI-style NIF, an NIE or a CIF.
func checkSpanishID(value string) string {
	switch {
	case dniPattern.MatchString(value):
		return nifControl(value[:8], value[8])
	case niePattern.MatchString(value):
		prefix := strings.IndexByte("XYZ", value[0])
		return nifControl(fmt.Sprintf("%d%s", prefix, value[1:8]), value[8])
	case cifPattern.MatchString(value):
		return cifControl(value)
	default:
		return ReasonTaxIDInvalidFormat
	}
}

func nifControl(number string, letter byte) string {
	n := 0
	for _, r := range number {
		n = n*10 + int(r-'0')
	}
	if nifLetters[n%23] != letter {
		return ReasonTaxIDInvalidChecksum
	}
	return ""
}

func cifControl(value string) string {
	d, _ := digits(value[1:8])
	sum := 0
	for i, x := range d {
		if i%2 == 1 {
			sum += x
			continue
		}
		doubled := x * 2
		sum += doubled/10 + doubled%10
	}
	control := (10 - sum%10) % 10

	last := value[8]
	expectedDigit := byte('0' + control)
	expectedLetter := "JABCDEFGHI"[control]

	switch value[0] {
	case 'P', 'Q', 'R', 'S', 'N', 'W':
		if last == expectedLetter {
			return ""
		}
	case 'A', 'B', 'E', 'H':
		if last == expectedDigit {
			return ""
		}
	default:
		if last == expectedDigit || last == expectedLetter {
			return ""
		}
	}
	return ReasonTaxIDInvalidChecksum
}

var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}([0-9]{2})(0[1-9]|1[0-2])(0[1-9]|[12][0-9]|3[01])[A-Z0-9]{3}$`)

// checkRFC validates the Mexican RFC format for companies (12) and people (13).
func checkRFC(value string) string {
	if !rfcPattern.MatchString(value) {
		return ReasonTaxIDInvalidFormat
	}
	return ""
}

// checkBN validates the 9-digit Canadian business number with the Luhn check.
func checkBN(value string) string {
	if len(value) > 9 {
		// Program account suffix, e.g. 123456789RT0001.
		value = value[:9]
	}
	d, ok := digits(value)
	if !ok || len(d) != 9 {
		return ReasonTaxIDInvalidFormat
	}
	if !luhn(d) {
		return ReasonTaxIDInvalidChecksum
	}
	return ""
}

func luhn(d []int) bool {
	sum := 0
	double := false
	for i := len(d) - 1; i >= 0; i-- {
		x := d[i]
		if double {
			x *= 2
			if x > 9 {
				x -= 9
			}
		}
		sum += x
		double = !double
	}
	return sum%10 == 0
}

// vatPatterns holds the national number format per EU member state prefix.
var vatPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U[0-9]{8}$`),
	"BE": regexp.MustCompile(`^[01][0-9]{9}$`),
	"BG": regexp.MustCompile(`^[0-9]{9,10}$`),
	"CY": regexp.MustCompile(`^[0-9]{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^[0-9]{8,10}$`),
	"DE": regexp.MustCompile(`^[0-9]{9}$`),
	"DK": regexp.MustCompile(`^[0-9]{8}$`),
	"EE": regexp.MustCompile(`^[0-9]{9}$`),
	"EL": regexp.MustCompile(`^[0-9]{9}$`),
	"ES": regexp.MustCompile(`^[0-9A-Z][0-9]{7}[0-9A-Z]$`),
	"FI": regexp.MustCompile(`^[0-9]{8}$`),
	"FR": regexp.MustCompile(`^[0-9A-Z]{2}[0-9]{9}$`),
	"HR": regexp.MustCompile(`^[0-9]{11}$`),
	"HU": regexp.MustCompile(`^[0-9]{8}$`),
	"IE": regexp.MustCompile(`^[0-9][0-9A-Z+*][0-9]{5}[A-Z]{1,2}$`),
	"IT": regexp.MustCompile(`^[0-9]{11}$`),
	"LT": regexp.MustCompile(`^([0-9]{9}|[0-9]{12})$`),
	"LU": regexp.MustCompile(`^[0-9]{8}$`),
	"LV": regexp.MustCompile(`^[0-9]{11}$`),
	"MT": regexp.MustCompile(`^[0-9]{8}$`),
	"NL": regexp.MustCompile(`^[0-9]{9}B[0-9]{2}$`),
	"PL": regexp.MustCompile(`^[0-9]{10}$`),
	"PT": regexp.MustCompile(`^[0-9]{9}$`),
	"RO": regexp.MustCompile(`^[0-9]{2,10}$`),
	"SE": regexp.MustCompile(`^[0-9]{12}$`),
	"SI": regexp.MustCompile(`^[0-9]{8}$`),
	"SK": regexp.MustCompile(`^[0-9]{10}$`),
}

// splitVAT separates the member state prefix from the national number.
// Greece uses EL in VAT numbers, so a GR country hint is mapped to it.
func splitVAT(value, country string) (string, string, string) {
	prefix, number := country, value
	if prefix == "GR" {
		prefix = "EL"
	}
	if len(value) > 2 {
		if _, ok := vatPatterns[value[:2]]; ok {
			prefix, number = value[:2], value[2:]
		}
	}

	pattern, ok := vatPatterns[prefix]
	if !ok {
		if prefix == "" {
			return "", "", ReasonTaxIDInvalidFormat
		}
		return "", "", ReasonTaxIDUnsupportedType
	}
	if !pattern.MatchString(number) {
		return "", "", ReasonTaxIDInvalidFormat
	}
	return prefix, number, ""
}
