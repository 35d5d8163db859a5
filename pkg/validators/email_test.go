package validators

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	records map[string][]*net.MX
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if mx, ok := f.records[name]; ok {
		return mx, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func newResolver() *fakeResolver {
	return &fakeResolver{records: map[string][]*net.MX{
		"example.com":    {{Host: "mx.example.com.", Pref: 10}},
		"mailinator.com": {{Host: "mail.mailinator.com.", Pref: 10}},
		"nullmx.com":     {{Host: ".", Pref: 0}},
	}}
}

func TestEmailValidator_Validate(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		valid      bool
		disposable bool
		reasons    []string
	}{
		{name: "valid", email: "  Jane.Doe@Example.com ", valid: true, reasons: []string{}},
		{name: "bad format", email: "not-an-email", reasons: []string{ReasonEmailInvalidFormat}},
		{name: "display name", email: "Jane <jane@example.com>", reasons: []string{ReasonEmailInvalidFormat}},
		{name: "single label domain", email: "jane@localhost", reasons: []string{ReasonEmailInvalidFormat}},
		{name: "no mx", email: "jane@unknown-domain.com", reasons: []string{ReasonEmailMXNotFound}},
		{name: "null mx", email: "jane@nullmx.com", reasons: []string{ReasonEmailMXNotFound}},
		{name: "disposable", email: "jane@mailinator.com", disposable: true, reasons: []string{ReasonEmailDisposable}},
	}

	v := NewEmailValidator(EmailConfig{}, newResolver(), nil, quietLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Validate(context.Background(), tt.email, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.disposable, result.Disposable)
			assert.Equal(t, tt.reasons, result.ReasonCodes)
		})
	}
}

func TestEmailValidator_NormalizesAddress(t *testing.T) {
	v := NewEmailValidator(EmailConfig{}, newResolver(), nil, quietLogger())

	result, err := v.Validate(context.Background(), " USER@Example.COM", Options{})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", result.Normalized)
	assert.True(t, result.MXFound)
}

func TestEmailValidator_MXTimeoutIsServerError(t *testing.T) {
	resolver := newResolver()
	resolver.delay = 200 * time.Millisecond
	v := NewEmailValidator(EmailConfig{MXTimeout: 20 * time.Millisecond}, resolver, nil, quietLogger())

	result, err := v.Validate(context.Background(), "jane@example.com", Options{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{ReasonEmailServerError}, result.ReasonCodes)
}

func TestEmailValidator_ResolverErrorIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	resolver := newResolver()
	resolver.err = errors.New("servfail")
	v := NewEmailValidator(EmailConfig{CacheTTL: time.Hour}, resolver, c, quietLogger())

	result, err := v.Validate(context.Background(), "jane@example.com", Options{})
	require.NoError(t, err)
	assert.Contains(t, result.ReasonCodes, ReasonEmailServerError)
	assert.False(t, mr.Exists("test:email:jane@example.com"))
}

func TestEmailValidator_CacheHitSkipsLookup(t *testing.T) {
	c, mr := newTestCache(t)
	resolver := newResolver()
	v := NewEmailValidator(EmailConfig{CacheTTL: 30 * 24 * time.Hour}, resolver, c, quietLogger())

	_, err := v.Validate(context.Background(), "jane@example.com", Options{})
	require.NoError(t, err)
	require.True(t, mr.Exists("test:email:jane@example.com"))
	assert.Equal(t, 30*24*time.Hour, mr.TTL("test:email:jane@example.com"))

	result, err := v.Validate(context.Background(), "Jane@example.com", Options{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, resolver.calls)
}

func TestEmailValidator_SkipCache(t *testing.T) {
	c, mr := newTestCache(t)
	resolver := newResolver()
	v := NewEmailValidator(EmailConfig{CacheTTL: time.Hour}, resolver, c, quietLogger())

	_, err := v.Validate(context.Background(), "jane@example.com", TestMode(time.Second))
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:email:jane@example.com"))
}

func TestEmailValidator_IsDisposable(t *testing.T) {
	v := NewEmailValidator(EmailConfig{DisposableDomains: []string{"Burner.Example"}}, nil, nil, quietLogger())

	assert.True(t, v.IsDisposable("mailinator.com"))
	assert.True(t, v.IsDisposable("eu.mailinator.com"))
	assert.True(t, v.IsDisposable("burner.example"))
	assert.False(t, v.IsDisposable("gmail.com"))
	assert.False(t, v.IsDisposable("com"))
}
