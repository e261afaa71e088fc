package validator

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/risk"
)

var ErrValidation = errors.New("validation failed")

var (
	fingerprintHashRegex = regexp.MustCompile(`^[a-f0-9]{64}$`)
	userIDRegex          = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)
	timezoneRegex        = regexp.MustCompile(`^[A-Za-z]+(/[A-Za-z0-9_+\-]+)*$`)
)

const (
	maxFonts        = 1000
	maxCanvasLength = 1 << 20
	maxFieldLength  = 1000
	maxDimension    = 100000
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Validator struct {
	errors []ValidationError
}

func New() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

func (v *Validator) ErrorMap() map[string]string {
	result := make(map[string]string)
	for _, err := range v.errors {
		result[err.Field] = err.Message
	}
	return result
}

// Err summarises collected errors with stable field ordering.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	parts := make([]string, 0, len(v.errors))
	for _, e := range v.errors {
		parts = append(parts, e.Error())
	}
	sort.Strings(parts)
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}

func ValidateTrustRequest(req models.TrustRequest) error {
	v := New()

	if !fingerprintHashRegex.MatchString(req.FingerprintHash) {
		v.AddError("fingerprint_hash", "must be a 64 character lowercase hex digest")
	}
	if !userIDRegex.MatchString(req.UserID) {
		v.AddError("user_id", "required, up to 128 of [A-Za-z0-9._:@-]")
	}

	return v.Err()
}

// ValidateFingerprintPayload bounds client-supplied components. It is only
// applied on explicit analysis requests; the request guard never rejects on it.
func ValidateFingerprintPayload(p *models.FingerprintPayload) error {
	v := New()

	if p == nil {
		v.AddError("fingerprint", "required")
		return v.Err()
	}

	c := p.Components
	if len(p.Fingerprint) > maxFieldLength {
		v.AddError("fingerprint", "too long")
	}
	for name, d := range map[string]*models.Dimensions{"screen": c.Screen, "viewport": c.Viewport} {
		if d != nil && (d.Width < 0 || d.Height < 0 || d.Width > maxDimension || d.Height > maxDimension) {
			v.AddError(name, "out of range")
		}
	}
	if c.Timezone != "" && (len(c.Timezone) > 64 || !timezoneRegex.MatchString(c.Timezone)) {
		v.AddError("timezone", "invalid format")
	}
	if c.Hardware != nil {
		if c.Hardware.HardwareConcurrency < 0 || c.Hardware.HardwareConcurrency > 4096 {
			v.AddError("hardware.hardwareConcurrency", "out of range")
		}
		if c.Hardware.DeviceMemory < 0 || c.Hardware.DeviceMemory > 4096 {
			v.AddError("hardware.deviceMemory", "out of range")
		}
	}
	if len(c.Fonts) > maxFonts {
		v.AddError("fonts", "too many entries")
	}
	if len(c.Canvas) > maxCanvasLength {
		v.AddError("canvas", "too long")
	}
	if len(c.WebGL) > maxFieldLength {
		v.AddError("webgl", "too long")
	}
	if len(c.Platform) > maxFieldLength {
		v.AddError("platform", "too long")
	}

	return v.Err()
}

func ValidateThresholds(req models.ThresholdsRequest) (risk.Thresholds, error) {
	t := risk.Thresholds{
		Low:      req.Low,
		Medium:   req.Medium,
		High:     req.High,
		Critical: req.Critical,
	}
	if err := t.Validate(); err != nil {
		return risk.Thresholds{}, err
	}
	return t, nil
}

// SanitizeString strips NUL and other control characters except newline and tab.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	var result strings.Builder
	for _, r := range s {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
