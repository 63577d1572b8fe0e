package domain

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func validAddress() AddressInfo {
	return AddressInfo{City: "Springfield", StreetName: "Main St", StreetNumber: "42"}
}

func TestFullAddress(t *testing.T) {
	got := validAddress().FullAddress()
	if got != "42 Main St, Springfield" {
		t.Errorf("FullAddress() = %q", got)
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.73, 0.73},
		{1, 1},
		{1.2, 1},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateAddress_Valid(t *testing.T) {
	if err := ValidateAddress(validAddress()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateAddress_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*AddressInfo)
	}{
		{"city", func(a *AddressInfo) { a.City = "" }},
		{"street_name", func(a *AddressInfo) { a.StreetName = "   " }},
		{"street_number", func(a *AddressInfo) { a.StreetNumber = "" }},
	}
	for _, tt := range tests {
		a := validAddress()
		tt.mod(&a)
		err := ValidateAddress(a)
		if !errors.Is(err, ErrMissingField) {
			t.Errorf("%s: expected ErrMissingField, got %v", tt.name, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tt.name {
			t.Errorf("%s: expected field in ValidationError, got %v", tt.name, err)
		}
	}
}

func TestValidateAddress_TooLong(t *testing.T) {
	a := validAddress()
	a.City = strings.Repeat("x", MaxCityLen+1)
	if err := ValidateAddress(a); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("expected ErrFieldTooLong, got %v", err)
	}

	a = validAddress()
	a.StreetNumber = strings.Repeat("9", MaxStreetNumberLen+1)
	if err := ValidateAddress(a); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("expected ErrFieldTooLong, got %v", err)
	}
}

func TestValidateUpload(t *testing.T) {
	req := UploadRequest{Address: validAddress(), Image: []byte{1, 2, 3}}
	if err := ValidateUpload(req); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	req.Image = nil
	if err := ValidateUpload(req); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}

	req = UploadRequest{Image: []byte{1}}
	if err := ValidateUpload(req); !errors.Is(err, ErrMissingField) {
		t.Errorf("address must be validated first, got %v", err)
	}
}

func TestValidateQuery(t *testing.T) {
	if err := ValidateQuery("what is the latest reading"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateQuery("  "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if err := ValidateQuery(strings.Repeat("q", MaxQueryLen+1)); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("expected ErrQueryTooLong, got %v", err)
	}
}

func TestValidateQuery_MultibytePrefix(t *testing.T) {
	err := ValidateQuery(strings.Repeat("水", MaxQueryLen+1))
	if !errors.Is(err, ErrQueryTooLong) {
		t.Fatalf("expected ErrQueryTooLong, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !utf8.ValidString(verr.Value) {
		t.Errorf("prefix split a rune: %q", verr.Value)
	}
	if verr.Value != strings.Repeat("水", 32)+"..." {
		t.Errorf("prefix = %q", verr.Value)
	}
}

func validReading() StoredReading {
	a := validAddress()
	return StoredReading{
		ID:           "meter_100_abc",
		City:         a.City,
		StreetName:   a.StreetName,
		StreetNumber: a.StreetNumber,
		FullAddress:  a.FullAddress(),
		MeterValue:   10,
		Confidence:   0.9,
		Units:        DefaultUnits,
		MeterType:    DefaultMeterType,
		Timestamp:    100,
	}
}

func TestValidateReading(t *testing.T) {
	if err := ValidateReading(validReading()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	r := validReading()
	r.ID = ""
	if err := ValidateReading(r); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField for ID, got %v", err)
	}

	r = validReading()
	r.FullAddress = "somewhere else"
	if err := ValidateReading(r); !errors.Is(err, ErrAddressMismatch) {
		t.Errorf("expected ErrAddressMismatch, got %v", err)
	}

	r = validReading()
	r.MeterValue = -1
	if err := ValidateReading(r); !errors.Is(err, ErrNegativeReading) {
		t.Errorf("expected ErrNegativeReading, got %v", err)
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	err := NewValidationError("city", "", ErrMissingField)
	if !errors.Is(err, ErrMissingField) {
		t.Error("ValidationError must unwrap to its sentinel")
	}
	if !strings.Contains(err.Error(), "city") {
		t.Errorf("error text should name the field: %q", err.Error())
	}
}
