package validators

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
)

const (
	ReasonEmailInvalidFormat = "email.invalid_format"
	ReasonEmailMXNotFound    = "email.mx_not_found"
	ReasonEmailServerError   = "email.server_error"
	ReasonEmailDisposable    = "email.disposable_domain"

	DefaultMXTimeout = 1200 * time.Millisecond
)

//go:embed disposable_domains.txt
var disposableDomainList string

// MXResolver looks up mail exchangers. *net.Resolver satisfies it.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// EmailResult is the outcome of an email validation.
type EmailResult struct {
	Valid       bool     `json:"valid"`
	Normalized  string   `json:"normalized"`
	Disposable  bool     `json:"disposable"`
	MXFound     bool     `json:"mx_found"`
	ReasonCodes []string `json:"reason_codes"`
}

type EmailConfig struct {
	MXTimeout         time.Duration
	CacheTTL          time.Duration
	DisposableDomains []string
}

type EmailValidator struct {
	resolver   MXResolver
	cache      Cache
	logger     ectologger.Logger
	cfg        EmailConfig
	disposable map[string]struct{}
}

// NewEmailValidator creates an email validator. resolver and cache may be nil,
// in which case MX checks and caching are skipped.
func NewEmailValidator(cfg EmailConfig, resolver MXResolver, cache Cache, logger ectologger.Logger) *EmailValidator {
	if cfg.MXTimeout <= 0 {
		cfg.MXTimeout = DefaultMXTimeout
	}

	disposable := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(disposableDomainList))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		disposable[strings.ToLower(line)] = struct{}{}
	}
	for _, d := range cfg.DisposableDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			disposable[d] = struct{}{}
		}
	}

	return &EmailValidator{
		resolver:   resolver,
		cache:      cache,
		logger:     logger,
		cfg:        cfg,
		disposable: disposable,
	}
}

// Validate checks the format, the disposable-domain list and the domain's MX
// records.
func (v *EmailValidator) Validate(ctx context.Context, email string, opts Options) (EmailResult, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	normalized := normalizers.NormalizeEmail(email)
	key := "email:" + normalized

	if cached, ok := fromCache[EmailResult](ctx, v.cache, v.logger, "email", key, opts); ok {
		return cached, nil
	}

	result := EmailResult{Normalized: normalized, ReasonCodes: []string{}}

	domain, ok := emailDomain(normalized)
	if !ok {
		result.ReasonCodes = append(result.ReasonCodes, ReasonEmailInvalidFormat)
		toCache(ctx, v.cache, v.logger, "email", key, result, v.cfg.CacheTTL, opts)
		return result, nil
	}

	result.Valid = true
	if v.IsDisposable(domain) {
		result.Disposable = true
		result.Valid = false
		result.ReasonCodes = append(result.ReasonCodes, ReasonEmailDisposable)
	}

	if v.resolver != nil {
		switch v.lookupMX(ctx, domain) {
		case mxFound:
			result.MXFound = true
		case mxMissing:
			result.Valid = false
			result.ReasonCodes = append(result.ReasonCodes, ReasonEmailMXNotFound)
		case mxUnavailable:
			// Lookup failures do not make the address invalid and are not cached.
			result.ReasonCodes = append(result.ReasonCodes, ReasonEmailServerError)
			return result, nil
		}
	}

	toCache(ctx, v.cache, v.logger, "email", key, result, v.cfg.CacheTTL, opts)
	return result, nil
}

// IsDisposable reports whether domain or any parent domain is on the
// disposable list.
func (v *EmailValidator) IsDisposable(domain string) bool {
	domain = strings.ToLower(domain)
	for {
		if _, ok := v.disposable[domain]; ok {
			return true
		}
		idx := strings.IndexByte(domain, '.')
		if idx < 0 {
			return false
		}
		domain = domain[idx+1:]
		if !strings.Contains(domain, ".") {
			return false
		}
	}
}

type mxOutcome int

const (
	mxFound mxOutcome = iota
	mxMissing
	mxUnavailable
)

func (v *EmailValidator) lookupMX(ctx context.Context, domain string) mxOutcome {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.MXTimeout)
	defer cancel()

	start := time.Now()
	records, err := v.resolver.LookupMX(ctx, domain)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			metrics.RecordExternalLookup("mx", "not_found", elapsed)
			return mxMissing
		}
		metrics.RecordExternalLookup("mx", "error", elapsed)
		v.logger.WithContext(ctx).WithError(err).Warnf("MX lookup failed for %s", domain)
		return mxUnavailable
	}

	metrics.RecordExternalLookup("mx", "ok", elapsed)
	for _, r := range records {
		// A null MX (RFC 7505) declares the domain accepts no mail.
		if r != nil && r.Host != "." && r.Host != "" {
			return mxFound
		}
	}
	return mxMissing
}

// emailDomain returns the domain part of a bare address, rejecting display
// names and malformed domains.
func emailDomain(email string) (string, bool) {
	if email == "" || len(email) > 254 {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", false
	}

	at := strings.LastIndexByte(email, '@')
	local, domain := email[:at], email[at+1:]
	if len(local) > 64 || !validDomain(domain) {
		return "", false
	}
	return domain, true
}

func validDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	return len(tld) >= 2 && strings.Trim(tld, "0123456789") != ""
}
