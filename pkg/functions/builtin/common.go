package builtin

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/functions"
)

func common() map[string]functions.Func {
	return map[string]functions.Func{
		"firstNonNull": func(_ context.Context, args []interface{}) (interface{}, error) {
			for _, a := range args {
				if a != nil {
					return a, nil
				}
			}
			return nil, nil
		},
		"greatest": extreme(func(a, b float64) bool { return a > b }),
		"least":    extreme(func(a, b float64) bool { return a < b }),
		"if": func(_ context.Context, args []interface{}) (interface{}, error) {
			if args[0] == true {
				return args[1], nil
			}
			return args[2], nil
		},
		"isNull": func(_ context.Context, args []interface{}) (interface{}, error) {
			return args[0] == nil, nil
		},
		"isNotNull": func(_ context.Context, args []interface{}) (interface{}, error) {
			return args[0] != nil, nil
		},
		"log": nullSafe(1, func(_ context.Context, args []interface{}) (interface{}, error) {
			n := num(args[0])
			if base := optional(args, 1); base != nil {
				return math.Log(n) / math.Log(num(base)), nil
			}
			return math.Log(n), nil
		}),
		"log10": nullSafe(1, func(_ context.Context, args []interface{}) (interface{}, error) {
			return math.Log10(num(args[0])), nil
		}),
		"removeZeros": func(_ context.Context, args []interface{}) (interface{}, error) {
			if args[0] == 0.0 {
				return nil, nil
			}
			return args[0], nil
		},
		"contains":      nullSafe(1, containsAll(strings.Contains)),
		"containsItems": nullSafe(1, containsAll(containsItem)),
		"subExpression": func(_ context.Context, args []interface{}) (interface{}, error) {
			return args[0], nil
		},
		"orgUnit.ancestor": orgUnitMember(func(ou *evaluator.OrgUnit) []string { return ou.Ancestors }),
		"orgUnit.dataSet":  orgUnitMember(func(ou *evaluator.OrgUnit) []string { return ou.DataSets }),
		"orgUnit.group":    orgUnitMember(func(ou *evaluator.OrgUnit) []string { return ou.Groups }),
		"orgUnit.program":  orgUnitMember(func(ou *evaluator.OrgUnit) []string { return ou.Programs }),
	}
}

// extreme picks the argument that beats all others under better, skipping
// nulls.
func extreme(better func(a, b float64) bool) functions.Func {
	return func(_ context.Context, args []interface{}) (interface{}, error) {
		var best interface{}
		for _, a := range args {
			if a == nil {
				continue
			}
			if best == nil || better(num(a), num(best)) {
				best = a
			}
		}
		return best, nil
	}
}

// containsAll reports whether the text matches every following argument.
func containsAll(match func(text, part string) bool) functions.Func {
	return func(_ context.Context, args []interface{}) (interface{}, error) {
		text := str(args[0])
		for _, a := range args[1:] {
			if a == nil || !match(text, str(a)) {
				return false, nil
			}
		}
		return true, nil
	}
}

// containsItem reports whether item is one of the comma separated values
// of list.
func containsItem(list, item string) bool {
	for _, v := range strings.Split(list, ",") {
		if strings.TrimSpace(v) == item {
			return true
		}
	}
	return false
}

func orgUnitMember(set func(*evaluator.OrgUnit) []string) functions.Func {
	return func(ctx context.Context, args []interface{}) (interface{}, error) {
		data := evaluator.DataFrom(ctx)
		if data == nil || data.OrgUnit == nil {
			return nil, fmt.Errorf("no org unit to evaluate against")
		}
		members := set(data.OrgUnit)
		for _, a := range args {
			if uid, ok := a.(string); ok && slices.Contains(members, uid) {
				return true, nil
			}
		}
		return false, nil
	}
}
