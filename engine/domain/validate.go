package domain

import (
	"strings"
	"unicode/utf8"
)

// Field length bounds mirror the collection schema.
const (
	MaxCityLen         = 100
	MaxStreetNameLen   = 200
	MaxStreetNumberLen = 20
	MaxQueryLen        = 500
)

// ClampConfidence forces a confidence score into [0, 1]. Always applied
// before storage.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ValidateAddress checks the three address fields independently.
func ValidateAddress(a AddressInfo) error {
	checks := []struct {
		field string
		value string
		max   int
	}{
		{"city", a.City, MaxCityLen},
		{"street_name", a.StreetName, MaxStreetNameLen},
		{"street_number", a.StreetNumber, MaxStreetNumberLen},
	}
	for _, c := range checks {
		v := strings.TrimSpace(c.value)
		if v == "" {
			return NewValidationError(c.field, c.value, ErrMissingField)
		}
		if utf8.RuneCountInString(v) > c.max {
			return NewValidationError(c.field, c.value, ErrFieldTooLong)
		}
	}
	return nil
}

// ValidateUpload checks an upload request before the vision stage runs.
func ValidateUpload(u UploadRequest) error {
	if err := ValidateAddress(u.Address); err != nil {
		return err
	}
	if len(u.Image) == 0 {
		return NewValidationError("file", u.FileName, ErrEmptyImage)
	}
	return nil
}

// ValidateQuery checks a free-text chat question.
func ValidateQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return NewValidationError("message", q, ErrEmptyQuery)
	}
	if utf8.RuneCountInString(q) > MaxQueryLen {
		// Rune-safe prefix; a byte slice could split a multibyte character.
		return NewValidationError("message", string([]rune(q)[:32])+"...", ErrQueryTooLong)
	}
	return nil
}

// ValidateReading checks a reading before it is written. FullAddress must
// stay derivable from the three address fields.
func ValidateReading(r StoredReading) error {
	if r.ID == "" {
		return NewValidationError("id", "", ErrMissingField)
	}
	addr := AddressInfo{City: r.City, StreetName: r.StreetName, StreetNumber: r.StreetNumber}
	if err := ValidateAddress(addr); err != nil {
		return err
	}
	if r.FullAddress != addr.FullAddress() {
		return NewValidationError("full_address", r.FullAddress, ErrAddressMismatch)
	}
	if r.MeterValue < 0 {
		return NewValidationError("meter_value", "", ErrNegativeReading)
	}
	return nil
}
