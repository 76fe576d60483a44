package magiclink

import "time"

// SimpleConfig is a plain struct implementation of Config for callers that
// don't have their own configuration layer. Zero fields fall back to the
// package defaults through the getters.
type SimpleConfig struct {
	SigningKey       string
	Issuer           string
	TokenTTL         time.Duration
	SessionTTL       time.Duration
	RenewThrottle    time.Duration
	SweepInterval    time.Duration
	RateLimitCeiling int
	RateLimitWindow  time.Duration
	AdminAllowList   []string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetIssuer() string {
	if c.Issuer == "" {
		return "magiclink"
	}
	return c.Issuer
}

func (c SimpleConfig) GetTokenTTL() time.Duration {
	if c.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return c.TokenTTL
}

func (c SimpleConfig) GetSessionTTL() time.Duration {
	if c.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return c.SessionTTL
}

func (c SimpleConfig) GetRenewThrottle() time.Duration {
	if c.RenewThrottle <= 0 {
		return DefaultRenewThrottle
	}
	return c.RenewThrottle
}

func (c SimpleConfig) GetSweepInterval() time.Duration {
	if c.SweepInterval <= 0 {
		return DefaultSweepInterval
	}
	return c.SweepInterval
}

func (c SimpleConfig) GetRateLimitCeiling() int {
	if c.RateLimitCeiling <= 0 {
		return DefaultRateLimitCeiling
	}
	return c.RateLimitCeiling
}

func (c SimpleConfig) GetRateLimitWindow() time.Duration {
	if c.RateLimitWindow <= 0 {
		return DefaultRateLimitWindow
	}
	return c.RateLimitWindow
}

func (c SimpleConfig) GetAdminAllowList() []string { return c.AdminAllowList }
