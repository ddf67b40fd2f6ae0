package transcribe

import (
	"fmt"
	"strings"
)

// ModelTier selects a whisper model size, from fastest to most accurate.
type ModelTier int

const (
	tierUnset ModelTier = iota
	TierTiny
	TierBase
	TierSmall
	TierMedium
	TierLarge
)

// DefaultTier is used when no model is requested.
const DefaultTier = TierSmall

var tierNames = map[ModelTier]string{
	TierTiny:   "tiny",
	TierBase:   "base",
	TierSmall:  "small",
	TierMedium: "medium",
	TierLarge:  "large",
}

// Tiers returns every tier from smallest to largest.
func Tiers() []ModelTier {
	return []ModelTier{TierTiny, TierBase, TierSmall, TierMedium, TierLarge}
}

// TierNames returns the tier names from smallest to largest.
func TierNames() []string {
	names := make([]string, 0, len(tierNames))
	for _, t := range Tiers() {
		names = append(names, t.String())
	}
	return names
}

// ParseModelTier parses a tier name, ignoring case and surrounding space.
// An empty name yields DefaultTier.
func ParseModelTier(s string) (ModelTier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultTier, nil
	}
	for _, t := range Tiers() {
		if tierNames[t] == name {
			return t, nil
		}
	}
	return tierUnset, fmt.Errorf("unknown model %q (available: %s)", s, strings.Join(TierNames(), ", "))
}

func (t ModelTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ModelTier(%d)", int(t))
}

// orDefault maps the zero tier to DefaultTier.
func (t ModelTier) orDefault() ModelTier {
	if t == tierUnset {
		return DefaultTier
	}
	return t
}
