package parser

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

// findClosestMatch finds the closest known name for target, or "".
func findClosestMatch(target string, candidates []string) string {
	if len(candidates) == 0 || target == "" {
		return ""
	}

	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	// No candidate contains target: fall back to edit distance for typos.
	best, bestDist := "", len(target)/2+1
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(target, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// unknownName fails on an unknown name spanning from start, attaching the
// closest candidate as suggestion.
func unknownName(p *parser, start int, what, name string, candidates []string) error {
	err := p.s.ErrorAt(start, start+len([]rune(name)), "%s: '%s'", what, name)
	err.Suggestion = findClosestMatch(name, candidates)
	return err
}

// invalidOption fails on a name that is not one of options.
func invalidOption(p *parser, start int, label, name string, options []string) *types.ParseError {
	err := p.s.ErrorAt(start, start+len([]rune(name)), "Invalid %s option: '%s', valid options are: [%s]", label, name, strings.Join(options, ", "))
	err.Suggestion = findClosestMatch(name, options)
	return err
}
