package builtin

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sandrolain/dhis2expr/pkg/evaluator"
	"github.com/sandrolain/dhis2expr/pkg/functions"
	"github.com/sandrolain/dhis2expr/pkg/parser"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

// d2 returns the program functions. Conditions given as text are parsed and
// evaluated with the functions of r.
func d2(r functions.Backend) map[string]functions.Func {
	return map[string]functions.Func{
		"d2:addDays": nullSafe(2, func(_ context.Context, args []interface{}) (interface{}, error) {
			return date(args[0]).AddDate(0, 0, int(num(args[1]))), nil
		}),
		"d2:ceil":  nullSafe(1, math1(math.Ceil)),
		"d2:floor": nullSafe(1, math1(math.Floor)),
		"d2:concatenate": func(_ context.Context, args []interface{}) (interface{}, error) {
			var sb strings.Builder
			for _, a := range args {
				if a != nil {
					sb.WriteString(types.FormatValue(a))
				}
			}
			return sb.String(), nil
		},
		"d2:condition": func(ctx context.Context, args []interface{}) (interface{}, error) {
			if args[0] == nil {
				return args[2], nil
			}
			ok, err := condition(ctx, r, str(args[0]))
			if err != nil {
				return nil, err
			}
			if ok {
				return args[1], nil
			}
			return args[2], nil
		},
		"d2:count": func(_ context.Context, args []interface{}) (interface{}, error) {
			return float64(len(candidates(variable(args, 0)))), nil
		},
		"d2:countIfCondition": func(ctx context.Context, args []interface{}) (interface{}, error) {
			if args[1] == nil {
				return 0.0, nil
			}
			count := 0
			for _, c := range candidates(variable(args, 0)) {
				ok, err := condition(ctx, r, quote(c)+" "+str(args[1]))
				if err != nil {
					return nil, err
				}
				if ok {
					count++
				}
			}
			return float64(count), nil
		},
		"d2:countIfValue": func(_ context.Context, args []interface{}) (interface{}, error) {
			want := types.FormatValue(args[1])
			count := 0
			for _, c := range candidates(variable(args, 0)) {
				if c == want {
					count++
				}
			}
			return float64(count), nil
		},
		"d2:countIfZeroPos": func(_ context.Context, args []interface{}) (interface{}, error) {
			count := 0
			for _, f := range numericCandidates(variable(args, 0)) {
				if f >= 0 {
					count++
				}
			}
			return float64(count), nil
		},
		"d2:daysBetween":    nullSafe(2, between(func(a, b time.Time) int { return int(b.Sub(a).Hours() / 24) })),
		"d2:weeksBetween":   nullSafe(2, between(func(a, b time.Time) int { return int(b.Sub(a).Hours() / (24 * 7)) })),
		"d2:minutesBetween": nullSafe(2, between(func(a, b time.Time) int { return int(b.Sub(a).Minutes()) })),
		"d2:monthsBetween":  nullSafe(2, between(monthsBetween)),
		"d2:yearsBetween": nullSafe(2, between(func(a, b time.Time) int {
			return monthsBetween(a, b) / 12
		})),
		"d2:extractDataMatrixValue": nullSafe(2, func(_ context.Context, args []interface{}) (interface{}, error) {
			return extractGS1(str(args[0]), str(args[1]))
		}),
		"d2:hasUserRole": nullSafe(1, func(ctx context.Context, args []interface{}) (interface{}, error) {
			data := evaluator.DataFrom(ctx)
			if data == nil {
				return false, nil
			}
			return slices.Contains(data.Supplementary["USER"], str(args[0])), nil
		}),
		"d2:hasValue": func(_ context.Context, args []interface{}) (interface{}, error) {
			v := variable(args, 0)
			return v != nil && v.Value() != nil, nil
		},
		"d2:inOrgUnitGroup": nullSafe(1, func(ctx context.Context, args []interface{}) (interface{}, error) {
			data := evaluator.DataFrom(ctx)
			if data == nil || data.OrgUnit == nil {
				return false, nil
			}
			group := str(args[0])
			return slices.Contains(data.OrgUnit.Groups, group) ||
				slices.Contains(data.Supplementary[group], data.OrgUnit.UID), nil
		}),
		"d2:lastEventDate": func(_ context.Context, args []interface{}) (interface{}, error) {
			v := variable(args, 0)
			if v == nil || v.EventDate() == "" {
				return nil, nil
			}
			t, err := types.ParseDate(v.EventDate())
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		"d2:left": nullSafe(2, func(_ context.Context, args []interface{}) (interface{}, error) {
			s := []rune(str(args[0]))
			n := clamp(int(num(args[1])), 0, len(s))
			return string(s[:n]), nil
		}),
		"d2:right": nullSafe(2, func(_ context.Context, args []interface{}) (interface{}, error) {
			s := []rune(str(args[0]))
			n := clamp(int(num(args[1])), 0, len(s))
			return string(s[len(s)-n:]), nil
		}),
		"d2:substring": nullSafe(3, func(_ context.Context, args []interface{}) (interface{}, error) {
			s := []rune(str(args[0]))
			start := clamp(int(num(args[1])), 0, len(s))
			end := clamp(int(num(args[2])), start, len(s))
			return string(s[start:end]), nil
		}),
		"d2:length": nullSafe(1, func(_ context.Context, args []interface{}) (interface{}, error) {
			return float64(utf8.RuneCountInString(str(args[0]))), nil
		}),
		"d2:split": nullSafe(3, func(_ context.Context, args []interface{}) (interface{}, error) {
			parts := strings.Split(str(args[0]), str(args[1]))
			i := int(num(args[2]))
			if i < 0 || i >= len(parts) {
				return "", nil
			}
			return parts[i], nil
		}),
		"d2:maxValue": func(_ context.Context, args []interface{}) (interface{}, error) {
			nums := numericCandidates(variable(args, 0))
			if len(nums) == 0 {
				return nil, nil
			}
			return slices.Max(nums), nil
		},
		"d2:minValue": func(_ context.Context, args []interface{}) (interface{}, error) {
			nums := numericCandidates(variable(args, 0))
			if len(nums) == 0 {
				return nil, nil
			}
			return slices.Min(nums), nil
		},
		"d2:modulus": nullSafe(2, func(_ context.Context, args []interface{}) (interface{}, error) {
			return math.Mod(num(args[0]), num(args[1])), nil
		}),
		"d2:oizp": nullSafe(1, func(_ context.Context, args []interface{}) (interface{}, error) {
			if num(args[0]) >= 0 {
				return 1.0, nil
			}
			return 0.0, nil
		}),
		"d2:zing": nullSafe(1, func(_ context.Context, args []interface{}) (interface{}, error) {
			return math.Max(num(args[0]), 0), nil
		}),
		"d2:zpvc": func(_ context.Context, args []interface{}) (interface{}, error) {
			count := 0
			for _, a := range args {
				if a != nil && num(a) >= 0 {
					count++
				}
			}
			return float64(count), nil
		},
		"d2:relationshipCount": func(ctx context.Context, args []interface{}) (interface{}, error) {
			data := evaluator.DataFrom(ctx)
			if data == nil {
				return 0.0, nil
			}
			rels := data.Supplementary["RELATIONSHIPS"]
			if t := optional(args, 0); t != nil {
				count := 0
				for _, r := range rels {
					if r == t {
						count++
					}
				}
				return float64(count), nil
			}
			return float64(len(rels)), nil
		},
		"d2:round": nullSafe(1, func(_ context.Context, args []interface{}) (interface{}, error) {
			decimals := 0.0
			if d := optional(args, 1); d != nil {
				decimals = num(d)
			}
			scale := math.Pow(10, decimals)
			return math.Round(num(args[0])*scale) / scale, nil
		}),
		"d2:validatePattern": nullSafe(2, func(_ context.Context, args []interface{}) (interface{}, error) {
			re, err := regexp.Compile("^(?:" + str(args[1]) + ")$")
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", str(args[1]), err)
			}
			return re.MatchString(str(args[0])), nil
		}),
	}
}

func math1(fn func(float64) float64) functions.Func {
	return func(_ context.Context, args []interface{}) (interface{}, error) {
		return fn(num(args[0])), nil
	}
}

func between(diff func(a, b time.Time) int) functions.Func {
	return func(_ context.Context, args []interface{}) (interface{}, error) {
		return float64(diff(date(args[0]), date(args[1]))), nil
	}
}

// monthsBetween counts whole months from a to b, negative when b is before a.
func monthsBetween(a, b time.Time) int {
	sign := 1
	if b.Before(a) {
		a, b, sign = b, a, -1
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	if a.AddDate(0, months, 0).After(b) {
		months--
	}
	return sign * months
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func candidates(v types.VariableValue) []string {
	if v == nil {
		return nil
	}
	return v.Candidates()
}

func numericCandidates(v types.VariableValue) []float64 {
	var nums []float64
	for _, c := range candidates(v) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
			nums = append(nums, f)
		}
	}
	return nums
}

// quote renders s as a literal: numbers stay bare, anything else is a string.
func quote(s string) string {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

// condition parses text in the mode of the running evaluation and evaluates
// it against the same data.
func condition(ctx context.Context, r functions.Backend, text string) (bool, error) {
	mode, ok := evaluator.ModeFrom(ctx)
	if !ok {
		mode = types.ModeRuleEngineCondition
	}
	expr, err := parser.Parse(text, mode)
	if err != nil {
		return false, err
	}
	v, err := evaluator.New(evaluator.WithFunctions(r)).Eval(ctx, expr, evaluator.DataFrom(ctx))
	if err != nil {
		return false, err
	}
	b, err := types.ToBoolean(v)
	if err != nil {
		return false, err
	}
	return b == true, nil
}

// GS1 application identifiers with a fixed value length. Others run up to
// the group separator.
var gs1Fixed = map[string]int{
	"00": 18, "01": 14, "02": 14, "11": 6, "12": 6, "13": 6, "15": 6, "16": 6, "17": 6,
}

var gs1Keys = map[string]string{
	"serial sscc": "00", "gtin": "01", "content": "02", "production date": "11",
	"due date": "12", "packaging date": "13", "best before date": "15", "sell by date": "16",
	"expiration date": "17", "batch number": "10", "serial number": "21",
}

const gs1Separator = "\x1d"

// extractGS1 returns the value of key from a GS1 DataMatrix string.
func extractGS1(key, value string) (interface{}, error) {
	ai, ok := gs1Keys[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("unknown GS1 key %q", key)
	}
	value = strings.TrimPrefix(strings.TrimPrefix(value, "]d2"), gs1Separator)
	for len(value) >= 2 {
		code := value[:2]
		value = value[2:]
		var v string
		if n, fixed := gs1Fixed[code]; fixed {
			if len(value) < n {
				return nil, fmt.Errorf("truncated GS1 element %s", code)
			}
			v, value = value[:n], value[n:]
		} else if i := strings.Index(value, gs1Separator); i >= 0 {
			v, value = value[:i], value[i:]
		} else {
			v, value = value, ""
		}
		value = strings.TrimPrefix(value, gs1Separator)
		if code == ai {
			return v, nil
		}
	}
	return nil, fmt.Errorf("GS1 value has no %s element", key)
}
