package builtin

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/sandrolain/dhis2expr/pkg/functions"
)

// aggregates returns the period reducers. Each receives the per-period
// values as its last argument.
func aggregates() map[string]functions.Func {
	return map[string]functions.Func{
		"avg": reducer(func(nums []float64) interface{} {
			return sum(nums) / float64(len(nums))
		}),
		"count": func(_ context.Context, args []interface{}) (interface{}, error) {
			return float64(len(values(args))), nil
		},
		"max": reducer(func(nums []float64) interface{} {
			return slices.Max(nums)
		}),
		"median": reducer(func(nums []float64) interface{} {
			return percentile(nums, 0.5)
		}),
		"min": reducer(func(nums []float64) interface{} {
			return slices.Min(nums)
		}),
		"percentileCont": func(_ context.Context, args []interface{}) (interface{}, error) {
			nums := values(args)
			if len(nums) == 0 || args[0] == nil {
				return nil, nil
			}
			p := num(args[0])
			if p < 0 || p > 1 {
				return nil, fmt.Errorf("percentileCont fraction must be between 0 and 1, was %v", p)
			}
			return percentile(nums, p), nil
		},
		"stddev": reducer(func(nums []float64) interface{} {
			return sampleStddev(nums)
		}),
		"stddevPop": reducer(func(nums []float64) interface{} {
			return math.Sqrt(variance(nums, 0))
		}),
		"stddevSamp": reducer(func(nums []float64) interface{} {
			return sampleStddev(nums)
		}),
		"sum": reducer(func(nums []float64) interface{} {
			return sum(nums)
		}),
		"variance": reducer(func(nums []float64) interface{} {
			if len(nums) < 2 {
				return nil
			}
			return variance(nums, 1)
		}),
	}
}

// reducer adapts fn to the aggregate calling convention. An empty vector
// reduces to null.
func reducer(fn func([]float64) interface{}) functions.Func {
	return func(_ context.Context, args []interface{}) (interface{}, error) {
		nums := values(args)
		if len(nums) == 0 {
			return nil, nil
		}
		return fn(nums), nil
	}
}

func values(args []interface{}) []float64 {
	if len(args) == 0 {
		return nil
	}
	nums, _ := args[len(args)-1].([]float64)
	return nums
}

func sum(nums []float64) float64 {
	s := 0.0
	for _, n := range nums {
		s += n
	}
	return s
}

// variance divides the squared deviations by len(nums)-ddof.
func variance(nums []float64, ddof int) float64 {
	mean := sum(nums) / float64(len(nums))
	v := 0.0
	for _, n := range nums {
		d := n - mean
		v += d * d
	}
	return v / float64(len(nums)-ddof)
}

func sampleStddev(nums []float64) interface{} {
	if len(nums) < 2 {
		return nil
	}
	return math.Sqrt(variance(nums, 1))
}

// percentile interpolates linearly between the closest ranks; p is in [0, 1].
func percentile(nums []float64, p float64) float64 {
	sorted := slices.Clone(nums)
	slices.Sort(sorted)
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
