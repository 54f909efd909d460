package utils

import (
	"errors"
	"os"
	"strings"

	"github.com/ttacon/libphonenumber"
)

func defaultPhoneRegion() string {
	region := strings.TrimSpace(os.Getenv("PHONE_REGION"))
	if region == "" {
		return "MM"
	}
	return region
}

// ValidatePhoneNumber parses the number against the configured default
// region. Empty numbers pass; the callers decide whether the field is
// required.
func ValidatePhoneNumber(number string) error {
	if strings.TrimSpace(number) == "" {
		return nil
	}
	parsed, err := libphonenumber.Parse(number, defaultPhoneRegion())
	if err != nil {
		return errors.New("invalid phone number")
	}
	if !libphonenumber.IsValidNumber(parsed) {
		return errors.New("invalid phone number")
	}
	return nil
}
