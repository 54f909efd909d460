package config

import (
	"os"
	"strings"
)

// AllowProductionFulfillment permits order lines to deduct whatever packed
// inventory is on hand and record the shortfall, instead of rejecting the
// line outright. The per-call policy flag can also enable this for a single
// operation; the env flag turns it on globally.
//
// Set via env:
// - ALLOW_PRODUCTION_FULFILLMENT=true
func AllowProductionFulfillment() bool {
	return boolFromEnv("ALLOW_PRODUCTION_FULFILLMENT")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
