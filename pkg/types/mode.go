package types

import (
	"fmt"
	"math/bits"
	"strings"
)

// Mode selects the grammar subset an expression is parsed with. Registry
// entries carry the set of modes that accept them.
type Mode uint16

// Modes.
const (
	ModeValidationRule Mode = 1 << iota
	ModePredictorGenerator
	ModePredictorSkipTest
	ModeIndicator
	ModeProgramIndicator
	ModeRuleEngineCondition
	ModeRuleEngineAction
)

const (
	modesAggregate  = ModeValidationRule | ModePredictorGenerator | ModePredictorSkipTest | ModeIndicator
	modesProgram    = ModeProgramIndicator | ModeRuleEngineCondition | ModeRuleEngineAction
	modesRuleEngine = ModeRuleEngineCondition | ModeRuleEngineAction
	modesPredictor  = ModePredictorGenerator | ModePredictorSkipTest
	modesAll        = modesAggregate | modesProgram
)

var modeNames = []struct {
	mode Mode
	name string
}{
	{ModeValidationRule, "VALIDATION_RULE"},
	{ModePredictorGenerator, "PREDICTOR_GENERATOR"},
	{ModePredictorSkipTest, "PREDICTOR_SKIP_TEST"},
	{ModeIndicator, "INDICATOR"},
	{ModeProgramIndicator, "PROGRAM_INDICATOR"},
	{ModeRuleEngineCondition, "RULE_ENGINE_CONDITION"},
	{ModeRuleEngineAction, "RULE_ENGINE_ACTION"},
}

// Modes returns every single mode.
func Modes() []Mode {
	out := make([]Mode, len(modeNames))
	for i, m := range modeNames {
		out[i] = m.mode
	}
	return out
}

// ModeNames returns the names accepted by ParseMode.
func ModeNames() []string {
	out := make([]string, len(modeNames))
	for i, m := range modeNames {
		out[i] = m.name
	}
	return out
}

// ParseMode maps a name such as "VALIDATION_RULE" (case-insensitive, '-' and
// '_' interchangeable) to its Mode.
func ParseMode(name string) (Mode, error) {
	norm := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	for _, m := range modeNames {
		if m.name == norm {
			return m.mode, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q, valid modes are: %v", name, ModeNames())
}

// Has reports whether m includes every mode in other.
func (m Mode) Has(other Mode) bool { return m&other == other && other != 0 }

// Accepts reports whether a registry entry with mode set m is usable in mode.
func (m Mode) Accepts(mode Mode) bool { return m&mode != 0 }

// IsRuleEngine reports whether m is a rule-engine mode.
func (m Mode) IsRuleEngine() bool { return m&modesRuleEngine != 0 && m&^modesRuleEngine == 0 }

func (m Mode) String() string {
	if bits.OnesCount16(uint16(m)) == 1 {
		for _, n := range modeNames {
			if n.mode == m {
				return n.name
			}
		}
	}
	var parts []string
	for _, n := range modeNames {
		if m&n.mode != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
