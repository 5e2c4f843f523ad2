package policy

import (
	"strings"
)

const (
	MinSensitivity     = 0
	MaxSensitivity     = 100
	DefaultSensitivity = 50
)

// Config is the moderation policy of one whiteboard session. It is a value:
// callers pass it into every classification and visibility decision.
type Config struct {
	Enabled         bool     `json:"enabled"`
	AutoModerate    bool     `json:"autoModerate"`
	Sensitivity     int      `json:"sensitivity" validate:"min=0,max=100"`
	CustomBlocklist []string `json:"customBlocklist"`
	CustomAllowlist []string `json:"customAllowlist"`
}

func Default() Config {
	return Config{
		Enabled:      true,
		AutoModerate: true,
		Sensitivity:  DefaultSensitivity,
	}
}

// Normalized clamps sensitivity and lower-cases, trims and de-duplicates both term lists.
func (c Config) Normalized() Config {
	out := c
	if out.Sensitivity < MinSensitivity {
		out.Sensitivity = MinSensitivity
	}
	if out.Sensitivity > MaxSensitivity {
		out.Sensitivity = MaxSensitivity
	}
	out.CustomBlocklist = normalizeTerms(c.CustomBlocklist)
	out.CustomAllowlist = normalizeTerms(c.CustomAllowlist)
	return out
}

func normalizeTerms(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, term := range in {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
