package config

import "fmt"

// Validate checks the settings document for internally inconsistent
// values that would make the admission pipeline behave unpredictably.
// It does not enforce that any particular section is present: every
// section is optional and defaults to "no limit"/"disabled".
func (s *Settings) Validate() error {
	for _, rule := range s.Limits.Event.RateLimits {
		if rule.Period <= 0 {
			return fmt.Errorf("config: rate limit period must be positive, got %d", rule.Period)
		}
		if rule.Rate <= 0 {
			return fmt.Errorf("config: rate limit rate must be positive, got %d", rule.Rate)
		}
	}
	if s.Limits.Event.CreatedAt.MaxPositiveDelta < 0 {
		return fmt.Errorf("config: createdAt.maxPositiveDelta must be >= 0")
	}
	if s.Limits.Event.CreatedAt.MaxNegativeDelta < 0 {
		return fmt.Errorf("config: createdAt.maxNegativeDelta must be >= 0")
	}
	if fee, ok := s.AdmissionFee(); ok && fee.Enabled && fee.Amount != nil && fee.Amount.Sign() < 0 {
		return fmt.Errorf("config: admission fee amount must be >= 0")
	}
	if fee, ok := s.PublicationFee(); ok && fee.Enabled && fee.Amount != nil && fee.Amount.Sign() < 0 {
		return fmt.Errorf("config: publication fee amount must be >= 0")
	}
	if fee, ok := s.TopUpFee(); ok && fee.Enabled && fee.Amount != nil && fee.Amount.Sign() < 0 {
		return fmt.Errorf("config: top-up fee amount must be >= 0")
	}
	if s.Webhooks.EventChecks && s.Webhooks.Endpoints.EventCheck == "" {
		return fmt.Errorf("config: webhooks.eventChecks enabled with no endpoint configured")
	}
	if s.Webhooks.PubkeyChecks && s.Webhooks.Endpoints.PubkeyCheck == "" {
		return fmt.Errorf("config: webhooks.pubkeyChecks enabled with no endpoint configured")
	}
	return nil
}
