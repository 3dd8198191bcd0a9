package ratelimit

import (
	"time"

	"github.com/moneymapper/authcore/internal/config"
)

// Action names the protected operation. Its value prefixes bucket keys.
type Action string

const (
	ActionLogin             Action = "login"
	ActionRegistration      Action = "register"
	ActionPasswordReset     Action = "password_reset"
	ActionEmailVerification Action = "email_verify"
)

type Policy struct {
	Limit  int
	Window time.Duration
}

type Policies map[Action]Policy

func DefaultPolicies() Policies {
	return Policies{
		ActionLogin:             {Limit: 5, Window: 15 * time.Minute},
		ActionRegistration:      {Limit: 3, Window: time.Hour},
		ActionPasswordReset:     {Limit: 3, Window: time.Hour},
		ActionEmailVerification: {Limit: 5, Window: time.Hour},
	}
}

// PoliciesFromConfig overlays configured limits on the defaults, ignoring
// non-positive values.
func PoliciesFromConfig(cfg config.RateLimitConfig) Policies {
	policies := DefaultPolicies()
	overlay := map[Action]config.RateLimitPolicy{
		ActionLogin:             cfg.Login,
		ActionRegistration:      cfg.Registration,
		ActionPasswordReset:     cfg.PasswordReset,
		ActionEmailVerification: cfg.EmailVerification,
	}
	for action, p := range overlay {
		current := policies[action]
		if p.Limit > 0 {
			current.Limit = p.Limit
		}
		if p.Window > 0 {
			current.Window = p.Window
		}
		policies[action] = current
	}
	return policies
}

func Key(action Action, identifier string) string {
	return string(action) + ":" + identifier
}
