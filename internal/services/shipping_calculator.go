package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const (
	shippingZoneMetro    = "metro"
	shippingZoneStandard = "standard"
	shippingZoneRemote   = "remote"
)

var postalCodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// ShippingRates configures zone pricing. Amounts are in minor units.
type ShippingRates struct {
	Metro                 int64
	Standard              int64
	Remote                int64
	FreeShippingThreshold int64
	MetroPrefixes         []string
	RemotePrefixes        []string
}

// DefaultShippingRates prices Indian PIN codes: six metro regions, the north-east and the islands
// as remote, and free shipping from 2000 rupees.
func DefaultShippingRates() ShippingRates {
	return ShippingRates{
		Metro:                 4000,
		Standard:              7000,
		Remote:                12000,
		FreeShippingThreshold: 200000,
		MetroPrefixes:         []string{"11", "40", "50", "56", "60", "70"},
		RemotePrefixes:        []string{"18", "19", "737", "744", "78", "79"},
	}
}

type shippingCalculator struct {
	rates ShippingRates
}

// NewShippingCalculator builds a zone based calculator. Zero rates fall back to the defaults.
func NewShippingCalculator(rates ShippingRates) ShippingCalculator {
	defaults := DefaultShippingRates()
	if rates.Metro <= 0 {
		rates.Metro = defaults.Metro
	}
	if rates.Standard <= 0 {
		rates.Standard = defaults.Standard
	}
	if rates.Remote <= 0 {
		rates.Remote = defaults.Remote
	}
	if rates.FreeShippingThreshold <= 0 {
		rates.FreeShippingThreshold = defaults.FreeShippingThreshold
	}
	if len(rates.MetroPrefixes) == 0 {
		rates.MetroPrefixes = defaults.MetroPrefixes
	}
	if len(rates.RemotePrefixes) == 0 {
		rates.RemotePrefixes = defaults.RemotePrefixes
	}
	return &shippingCalculator{rates: rates}
}

func (c *shippingCalculator) ValidatePostalCode(postalCode string) PostalCodeValidation {
	postalCode = strings.TrimSpace(postalCode)
	switch {
	case postalCode == "":
		return PostalCodeValidation{Message: "postal code is required"}
	case !postalCodePattern.MatchString(postalCode):
		return PostalCodeValidation{Message: "postal code must be a 6-digit PIN code"}
	}
	return PostalCodeValidation{IsValid: true, Message: "postal code is serviceable"}
}

func (c *shippingCalculator) Calculate(_ context.Context, postalCode string, discountedSubtotal int64) (int64, error) {
	postalCode = strings.TrimSpace(postalCode)
	if v := c.ValidatePostalCode(postalCode); !v.IsValid {
		return 0, fmt.Errorf("%w: %s", ErrOrderInvalidInput, v.Message)
	}
	if discountedSubtotal >= c.rates.FreeShippingThreshold {
		return 0, nil
	}
	switch c.zone(postalCode) {
	case shippingZoneMetro:
		return c.rates.Metro, nil
	case shippingZoneRemote:
		return c.rates.Remote, nil
	default:
		return c.rates.Standard, nil
	}
}

func (c *shippingCalculator) Quote(ctx context.Context, postalCode string, subtotal int64) (ShippingQuote, error) {
	if subtotal < 0 {
		return ShippingQuote{}, fmt.Errorf("%w: subtotal must not be negative", ErrOrderInvalidInput)
	}
	postalCode = strings.TrimSpace(postalCode)
	cost, err := c.Calculate(ctx, postalCode, subtotal)
	if err != nil {
		return ShippingQuote{}, err
	}
	return ShippingQuote{
		PostalCode:            postalCode,
		Zone:                  c.zone(postalCode),
		Subtotal:              subtotal,
		ShippingCost:          cost,
		FreeShippingThreshold: c.rates.FreeShippingThreshold,
		AmountForFreeShipping: max(0, c.rates.FreeShippingThreshold-subtotal),
	}, nil
}

// zone picks the zone of the longest matching prefix.
func (c *shippingCalculator) zone(postalCode string) string {
	best, zone := 0, shippingZoneStandard
	for _, p := range c.rates.MetroPrefixes {
		if strings.HasPrefix(postalCode, p) && len(p) > best {
			best, zone = len(p), shippingZoneMetro
		}
	}
	for _, p := range c.rates.RemotePrefixes {
		if strings.HasPrefix(postalCode, p) && len(p) > best {
			best, zone = len(p), shippingZoneRemote
		}
	}
	return zone
}
