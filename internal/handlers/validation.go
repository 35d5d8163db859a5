package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/utils"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/validators"
)

type EmailValidator interface {
	Validate(ctx context.Context, email string, opts validators.Options) (validators.EmailResult, error)
}

type PhoneValidator interface {
	Validate(ctx context.Context, input validators.PhoneInput, opts validators.Options) (validators.PhoneResult, error)
	RequestOTP(ctx context.Context, e164 string) (string, error)
	VerifyOTP(ctx context.Context, verificationID, code string) (bool, error)
}

type AddressValidator interface {
	Validate(ctx context.Context, addr models.Address, opts validators.Options) (validators.AddressResult, error)
}

type TaxIDValidator interface {
	Validate(ctx context.Context, input validators.TaxIDInput, opts validators.Options) (validators.TaxIDResult, error)
}

type EmailRequest struct {
	Email string `json:"email" validate:"required"`
}

type PhoneRequest struct {
	Phone      string `json:"phone" validate:"required"`
	Country    string `json:"country,omitempty" validate:"omitempty,len=2"`
	RequestOTP bool   `json:"request_otp,omitempty"`
}

type VerifyPhoneRequest struct {
	VerificationID string `json:"verification_id" validate:"required"`
	Code           string `json:"code" validate:"required"`
}

type VerifyPhoneResponse struct {
	Valid bool `json:"valid"`
}

type ValidationHandler struct {
	email   EmailValidator
	phone   PhoneValidator
	address AddressValidator
	taxID   TaxIDValidator
	audit   auditor
	logger  ectologger.Logger
}

func NewValidationHandler(email EmailValidator, phone PhoneValidator, address AddressValidator, taxID TaxIDValidator, recorder AuditRecorder, logger ectologger.Logger) *ValidationHandler {
	return &ValidationHandler{
		email:   email,
		phone:   phone,
		address: address,
		taxID:   taxID,
		audit:   auditor{recorder: recorder, logger: logger},
		logger:  logger,
	}
}

func (h *ValidationHandler) Register(g *echo.Group) {
	g.POST("/validate/email", h.ValidateEmail)
	g.POST("/validate/phone", h.ValidatePhone)
	g.POST("/verify/phone", h.VerifyPhone)
	g.POST("/validate/address", h.ValidateAddress)
	g.POST("/validate/tax-id", h.ValidateTaxID)
}

// unavailable logs an infrastructure failure and turns it into a 503.
func (h *ValidationHandler) unavailable(ctx context.Context, field string, err error) error {
	h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"field": field}).Error("validator unavailable")
	h.audit.record(ctx, models.AuditTypeValidation, http.StatusServiceUnavailable, nil, map[string]any{"field": field})
	return httperror.NewHTTPErrorf(http.StatusServiceUnavailable, "%s validation is temporarily unavailable", field)
}

func (h *ValidationHandler) ValidateEmail(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[EmailRequest](c)
	if err != nil {
		return err
	}

	result, err := h.email.Validate(ctx, req.Email, validators.Options{})
	if err != nil {
		return h.unavailable(ctx, "email", err)
	}

	h.audit.record(ctx, models.AuditTypeValidation, http.StatusOK, result.ReasonCodes, map[string]any{"field": "email", "valid": result.Valid})
	return c.JSON(http.StatusOK, result)
}

// ValidatePhone validates a number and, when asked and the number is valid,
// starts an OTP challenge.
func (h *ValidationHandler) ValidatePhone(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[PhoneRequest](c)
	if err != nil {
		return err
	}

	result, err := h.phone.Validate(ctx, validators.PhoneInput{Phone: req.Phone, Country: req.Country}, validators.Options{})
	if err != nil {
		return h.unavailable(ctx, "phone", err)
	}

	if req.RequestOTP && result.Valid {
		id, err := h.phone.RequestOTP(ctx, result.E164)
		if err != nil {
			return h.unavailable(ctx, "phone", err)
		}
		result.VerificationID = id
		result.ReasonCodes = append(result.ReasonCodes, validators.ReasonPhoneOTPSent)
	}

	h.audit.record(ctx, models.AuditTypeValidation, http.StatusOK, result.ReasonCodes, map[string]any{"field": "phone", "valid": result.Valid})
	return c.JSON(http.StatusOK, result)
}

func (h *ValidationHandler) VerifyPhone(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[VerifyPhoneRequest](c)
	if err != nil {
		return err
	}

	ok, err := h.phone.VerifyOTP(ctx, req.VerificationID, req.Code)
	if errors.Is(err, validators.ErrOTPNotFound) {
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return h.unavailable(ctx, "phone", err)
	}

	h.audit.record(ctx, models.AuditTypeValidation, http.StatusOK, nil, map[string]any{"field": "phone_otp", "valid": ok})
	return c.JSON(http.StatusOK, VerifyPhoneResponse{Valid: ok})
}

func (h *ValidationHandler) ValidateAddress(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.Address](c)
	if err != nil {
		return err
	}

	result, err := h.address.Validate(ctx, req, validators.Options{})
	if err != nil {
		return h.unavailable(ctx, "address", err)
	}

	h.audit.record(ctx, models.AuditTypeValidation, http.StatusOK, result.ReasonCodes, map[string]any{"field": "address", "valid": result.Valid})
	return c.JSON(http.StatusOK, result)
}

func (h *ValidationHandler) ValidateTaxID(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[validators.TaxIDInput](c)
	if err != nil {
		return err
	}

	result, err := h.taxID.Validate(ctx, req, validators.Options{})
	if err != nil {
		return h.unavailable(ctx, "tax_id", err)
	}

	h.audit.record(ctx, models.AuditTypeValidation, http.StatusOK, result.ReasonCodes, map[string]any{"field": "tax_id", "type": req.Type, "valid": result.Valid})
	return c.JSON(http.StatusOK, result)
}
