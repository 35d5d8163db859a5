package validators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
	"github.com/nyaruka/phonenumbers"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	ReasonPhoneInvalidFormat  = "phone.invalid_format"
	ReasonPhoneUnknownCountry = "phone.unknown_country"
	ReasonPhoneOTPSent        = "phone.otp_sent"

	DefaultOTPTTL = 5 * time.Minute
)

// ErrOTPNotFound is returned by VerifyOTP when the verification id is unknown
// or expired.
var ErrOTPNotFound = errors.New("otp verification not found or expired")

// PhoneInput is a raw phone number plus an optional ISO-3166 alpha-2 hint.
type PhoneInput struct {
	Phone   string `json:"phone" validate:"required"`
	Country string `json:"country,omitempty" validate:"omitempty,len=2"`
}

// PhoneResult is the outcome of a phone validation.
type PhoneResult struct {
	Valid          bool     `json:"valid"`
	E164           string   `json:"e164,omitempty"`
	Country        string   `json:"country,omitempty"`
	LineType       string   `json:"line_type,omitempty"`
	ReasonCodes    []string `json:"reason_codes"`
	VerificationID string   `json:"verification_id,omitempty"`
}

// OTPSender delivers a one-time code to a phone number (SMS gateway).
type OTPSender interface {
	SendOTP(ctx context.Context, e164, code string) error
}

// SecretStore keeps OTP secrets for the length of the challenge window.
// *cache.Client satisfies it.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type PhoneConfig struct {
	CacheTTL  time.Duration
	OTPIssuer string
	OTPTTL    time.Duration
}

type PhoneValidator struct {
	cache   Cache
	secrets SecretStore
	sender  OTPSender
	logger  ectologger.Logger
	cfg     PhoneConfig
}

// NewPhoneValidator creates a phone validator. secrets and sender are only
// needed for the OTP flow.
func NewPhoneValidator(cfg PhoneConfig, cache Cache, secrets SecretStore, sender OTPSender, logger ectologger.Logger) *PhoneValidator {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}
	if cfg.OTPIssuer == "" {
		cfg.OTPIssuer = "OrbitCheck"
	}
	return &PhoneValidator{
		cache:   cache,
		secrets: secrets,
		sender:  sender,
		logger:  logger,
		cfg:     cfg,
	}
}

// Validate parses the number against the supplied or detected region.
func (v *PhoneValidator) Validate(ctx context.Context, input PhoneInput, opts Options) (PhoneResult, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	normalized := normalizers.NormalizePhone(input.Phone)
	region := strings.ToUpper(strings.TrimSpace(input.Country))
	key := fmt.Sprintf("phone:%s:%s", normalized, region)

	if cached, ok := fromCache[PhoneResult](ctx, v.cache, v.logger, "phone", key, opts); ok {
		return cached, nil
	}

	result := parsePhone(normalized, region)
	toCache(ctx, v.cache, v.logger, "phone", key, result, v.cfg.CacheTTL, opts)
	return result, nil
}

func parsePhone(normalized, region string) PhoneResult {
	result := PhoneResult{ReasonCodes: []string{}}

	if normalized == "" || normalized == "+" {
		result.ReasonCodes = append(result.ReasonCodes, ReasonPhoneInvalidFormat)
		return result
	}
	if !strings.HasPrefix(normalized, "+") && region == "" {
		result.ReasonCodes = append(result.ReasonCodes, ReasonPhoneUnknownCountry)
		return result
	}

	num, err := phonenumbers.Parse(normalized, region)
	if err != nil {
		if errors.Is(err, phonenumbers.ErrInvalidCountryCode) {
			result.ReasonCodes = append(result.ReasonCodes, ReasonPhoneUnknownCountry)
		} else {
			result.ReasonCodes = append(result.ReasonCodes, ReasonPhoneInvalidFormat)
		}
		return result
	}

	if !phonenumbers.IsValidNumber(num) {
		result.ReasonCodes = append(result.ReasonCodes, ReasonPhoneInvalidFormat)
		return result
	}

	result.Valid = true
	result.E164 = phonenumbers.Format(num, phonenumbers.E164)
	result.Country = phonenumbers.GetRegionCodeForNumber(num)
	result.LineType = lineType(phonenumbers.GetNumberType(num))
	return result
}

func lineType(t phonenumbers.PhoneNumberType) string {
	switch t {
	case phonenumbers.MOBILE:
		return "mobile"
	case phonenumbers.FIXED_LINE:
		return "fixed_line"
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return "fixed_line_or_mobile"
	case phonenumbers.TOLL_FREE:
		return "toll_free"
	case phonenumbers.PREMIUM_RATE:
		return "premium_rate"
	case phonenumbers.VOIP:
		return "voip"
	default:
		return "unknown"
	}
}

func (v *PhoneValidator) totpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(v.cfg.OTPTTL / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// RequestOTP issues a TOTP secret for the number, stores it for the OTP
// window and sends the current code. It returns the verification id.
func (v *PhoneValidator) RequestOTP(ctx context.Context, e164 string) (string, error) {
	if v.secrets == nil || v.sender == nil {
		return "", ErrOTPDeliveryDisabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.cfg.OTPIssuer,
		AccountName: e164,
		Period:      uint(v.cfg.OTPTTL / time.Second),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate otp secret: %w", err)
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), time.Now(), v.totpOpts())
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}

	verificationID := uuid.NewString()
	if err := v.secrets.Set(ctx, otpKey(verificationID), key.Secret(), v.cfg.OTPTTL); err != nil {
		return "", fmt.Errorf("failed to store otp secret: %w", err)
	}

	if err := v.sender.SendOTP(ctx, e164, code); err != nil {
		_ = v.secrets.Del(ctx, otpKey(verificationID))
		return "", fmt.Errorf("failed to send otp: %w", err)
	}

	v.logger.WithContext(ctx).WithFields(map[string]any{
		"verification_id": verificationID,
	}).Info("OTP challenge sent")

	return verificationID, nil
}

// VerifyOTP checks a submitted code. A successful verification consumes the
// challenge.
func (v *PhoneValidator) VerifyOTP(ctx context.Context, verificationID, code string) (bool, error) {
	if v.secrets == nil {
		return false, ErrOTPDeliveryDisabled
	}

	secret, found, err := v.secrets.Get(ctx, otpKey(verificationID))
	if err != nil {
		return false, fmt.Errorf("failed to read otp secret: %w", err)
	}
	if !found {
		return false, ErrOTPNotFound
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, time.Now(), v.totpOpts())
	if err != nil || !ok {
		return false, nil
	}

	if err := v.secrets.Del(ctx, otpKey(verificationID)); err != nil {
		v.logger.WithContext(ctx).WithError(err).Warn("failed to remove consumed otp secret")
	}
	return true, nil
}

func otpKey(verificationID string) string {
	return "otp:" + verificationID
}
