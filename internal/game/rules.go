package game

import (
	"encoding/json"
	"fmt"
)

// RuleSet is the slice of rule-template data the live engine consumes:
// resolution ordering plus effect magnitudes. Everything else in a
// template (item tables, map config) stays opaque to this package.
type RuleSet struct {
	MaxHealth    int          `json:"max_health"`
	AttackDamage int          `json:"attack_damage"`
	DefendShield int          `json:"defend_shield"`
	HealAmount   int          `json:"heal_amount"`
	KindPriority map[Kind]int `json:"kind_priority,omitempty"`

	// ImmediateDeath switches settlement to death-stops-further-action
	// semantics: an actor killed mid-pass no longer acts this round.
	ImmediateDeath bool `json:"immediate_death"`
}

func DefaultRules() RuleSet {
	return RuleSet{
		MaxHealth:    100,
		AttackDamage: 20,
		DefendShield: 25,
		HealAmount:   15,
		KindPriority: defaultPriority(),
	}
}

func defaultPriority() map[Kind]int {
	return map[Kind]int{
		KindDefend:  0,
		KindUseItem: 1,
		KindAttack:  2,
		KindMove:    3,
	}
}

// ParseRules overlays a rule-template config onto the defaults, so a
// template only has to name what it changes.
func ParseRules(config []byte) (RuleSet, error) {
	rules := DefaultRules()
	if len(config) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(config, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules config: %w", err)
	}
	if rules.MaxHealth <= 0 {
		return RuleSet{}, fmt.Errorf("rules config: max_health must be positive, got %d", rules.MaxHealth)
	}
	if rules.KindPriority == nil {
		rules.KindPriority = defaultPriority()
	}
	return rules, nil
}

func (r RuleSet) priority(k Kind) int {
	if p, ok := r.KindPriority[k]; ok {
		return p
	}
	// Unknown kinds sort last so rule templates can add kinds without
	// breaking ordering of the built-in ones.
	return len(r.KindPriority) + 1
}
