package tts

import (
	"strings"

	"ai-speech-roundtrip-service/internal/apperr"
)

// Strategy orders the candidate backends for one synthesis. heavy is nil
// unless the session's heavy backend is READY.
type Strategy interface {
	Name() string
	Order(heavy HeavyBackend, light []Backend) []Backend
}

// PreferHeavy tries the ready heavy backend first, then the lightweight
// backends in configured order.
type PreferHeavy struct{}

func (PreferHeavy) Name() string { return "prefer-heavy" }

func (PreferHeavy) Order(heavy HeavyBackend, light []Backend) []Backend {
	out := make([]Backend, 0, len(light)+1)
	if heavy != nil {
		out = append(out, heavy)
	}
	return append(out, light...)
}

// Priority orders backends by name. Backends not named keep their
// configured order after the named ones. The heavy backend is only a
// candidate while READY.
type Priority struct {
	Names []string
}

func (Priority) Name() string { return "priority" }

func (p Priority) Order(heavy HeavyBackend, light []Backend) []Backend {
	all := make([]Backend, 0, len(light)+1)
	if heavy != nil {
		all = append(all, heavy)
	}
	all = append(all, light...)

	out := make([]Backend, 0, len(all))
	used := make([]bool, len(all))
	for _, name := range p.Names {
		for i, b := range all {
			if !used[i] && strings.EqualFold(b.Name(), name) {
				out = append(out, b)
				used[i] = true
				break
			}
		}
	}
	for i, b := range all {
		if !used[i] {
			out = append(out, b)
		}
	}
	return out
}

// ParseStrategy builds a strategy by name. names is the priority list used
// by the priority strategy.
func ParseStrategy(name string, names []string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "prefer-heavy":
		return PreferHeavy{}, nil
	case "priority":
		return Priority{Names: names}, nil
	}
	return nil, apperr.Errorf(apperr.KindUserInput, "tts.strategy", "unknown strategy %q", name)
}
