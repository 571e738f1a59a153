package parser

import (
	"fmt"
	"unicode"

	"github.com/sandrolain/dhis2expr/pkg/types"
)

const eof = -1

// Scanner is a character cursor over an expression.
//
// Whitespace and comments are skipped explicitly with SkipWS. The skipped run
// stays pending until the next consuming operation; in annotate mode that
// operation first flushes the run into the whitespace token list. A Position
// taken by Begin is therefore always consistent with the token count.
type Scanner struct {
	input    []rune // Input being scanned
	source   string // Original text
	pos      int    // Current position in input
	lastEnd  int    // End of the last consumed significant character
	annotate bool   // Record whitespace tokens

	pending    types.Whitespace
	hasPending bool
	tokens     []types.Whitespace
}

// NewScanner creates a scanner over source.
func NewScanner(source string, annotate bool) *Scanner {
	return &Scanner{
		input:    []rune(source),
		source:   source,
		annotate: annotate,
	}
}

// Peek returns the current character without consuming it, or eof.
func (s *Scanner) Peek() rune {
	if s.pos >= len(s.input) {
		return eof
	}
	return s.input[s.pos]
}

// PeekAt reports whether the character offset positions ahead matches pred.
func (s *Scanner) PeekAt(offset int, pred func(rune) bool) bool {
	i := s.pos + offset
	if i < 0 || i >= len(s.input) {
		return false
	}
	return pred(s.input[i])
}

// PeekLiteral reports whether the input continues with lit.
func (s *Scanner) PeekLiteral(lit string) bool {
	i := s.pos
	for _, r := range lit {
		if i >= len(s.input) || s.input[i] != r {
			return false
		}
		i++
	}
	return true
}

// PeekKeyword reports whether the input continues with the keyword kw not
// followed by an identifier character.
func (s *Scanner) PeekKeyword(kw string) bool {
	return s.PeekLiteral(kw) && !s.PeekAt(len([]rune(kw)), isIdentChar)
}

// AtEOF reports whether the whole input was consumed.
func (s *Scanner) AtEOF() bool {
	return s.pos >= len(s.input)
}

// Pos returns the current character index.
func (s *Scanner) Pos() int {
	return s.pos
}

// Next consumes one character.
func (s *Scanner) Next() rune {
	if s.pos >= len(s.input) {
		return eof
	}
	s.flush()
	r := s.input[s.pos]
	s.pos++
	s.lastEnd = s.pos
	return r
}

// TakeN consumes n characters and returns them.
func (s *Scanner) TakeN(n int) string {
	s.flush()
	end := min(s.pos+n, len(s.input))
	text := string(s.input[s.pos:end])
	s.pos = end
	s.lastEnd = end
	return text
}

// Take consumes the longest run of characters matching pred.
func (s *Scanner) Take(pred func(rune) bool) string {
	end := s.pos
	for end < len(s.input) && pred(s.input[end]) {
		end++
	}
	if end == s.pos {
		return ""
	}
	return s.TakeN(end - s.pos)
}

// Expect consumes r or fails.
func (s *Scanner) Expect(r rune) error {
	if s.Peek() != r {
		return s.expected(string(r))
	}
	s.Next()
	return nil
}

// ExpectLiteral consumes lit or fails.
func (s *Scanner) ExpectLiteral(lit string) error {
	if !s.PeekLiteral(lit) {
		return s.expected(lit)
	}
	s.TakeN(len([]rune(lit)))
	return nil
}

func (s *Scanner) expected(what string) error {
	if s.AtEOF() {
		return s.ErrorAt(s.pos, s.pos, "Expected '%s' but reached end of input", what)
	}
	return s.ErrorAt(s.pos, s.pos+1, "Expected '%s' but found '%c'", what, s.Peek())
}

// Unexpected fails on the current character.
func (s *Scanner) Unexpected() error {
	if s.AtEOF() {
		return s.ErrorAt(s.pos, s.pos, "Unexpected end of input")
	}
	return s.ErrorAt(s.pos, s.pos+1, "Unexpected input character: '%c'", s.Peek())
}

// ErrorAt creates a ParseError covering [start, end).
func (s *Scanner) ErrorAt(start, end int, format string, args ...interface{}) *types.ParseError {
	return types.NewParseError(s.source, start, end, format, args...)
}

// SkipWS skips whitespace and /* comments */, recording the run as pending.
func (s *Scanner) SkipWS() error {
	start := s.pos
	for s.pos < len(s.input) {
		r := s.input[s.pos]
		if unicode.IsSpace(r) {
			s.pos++
			continue
		}
		if r == '/' && s.PeekAt(1, is('*')) {
			end := -1
			for i := s.pos + 2; i+1 < len(s.input); i++ {
				if s.input[i] == '*' && s.input[i+1] == '/' {
					end = i
					break
				}
			}
			if end < 0 {
				return s.ErrorAt(s.pos, len(s.input), "Unterminated comment")
			}
			s.pos = end + 2
			continue
		}
		break
	}
	if s.pos == start {
		return nil
	}
	if s.hasPending && s.pending.End == start {
		s.pending.End = s.pos
	} else {
		s.flush()
		s.pending = types.Whitespace{Start: start, End: s.pos}
		s.hasPending = true
	}
	return nil
}

func (s *Scanner) flush() {
	if !s.hasPending {
		return
	}
	s.hasPending = false
	if s.annotate {
		s.pending.Text = string(s.input[s.pending.Start:s.pending.End])
		s.tokens = append(s.tokens, s.pending)
	}
}

// Begin flushes pending whitespace and marks the start of a node.
func (s *Scanner) Begin() types.Position {
	s.flush()
	return types.Position{Char: s.pos, Space: len(s.tokens)}
}

// End marks the end of the node that consumed the last significant input.
func (s *Scanner) End() types.Position {
	return types.Position{Char: s.lastEnd, Space: len(s.tokens)}
}

// Finish flushes trailing whitespace and returns the position after the input.
func (s *Scanner) Finish() types.Position {
	s.flush()
	return types.Position{Char: len(s.input), Space: len(s.tokens)}
}

// Tokens returns the whitespace tokens recorded so far.
func (s *Scanner) Tokens() []types.Whitespace {
	return s.tokens
}

// Slice returns the source text of [start, end).
func (s *Scanner) Slice(start, end int) string {
	return string(s.input[start:end])
}

func (s *Scanner) String() string {
	return fmt.Sprintf("Scanner(%d/%d)", s.pos, len(s.input))
}

func is(r rune) func(rune) bool {
	return func(c rune) bool { return c == r }
}

func isLetter(r rune) bool {
	return r <= unicode.MaxASCII && unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isAlnum(r rune) bool {
	return isLetter(r) || isDigit(r)
}

func isIdentStart(r rune) bool {
	return isLetter(r) || r == '_'
}

func isIdentChar(r rune) bool {
	return isAlnum(r) || r == '_'
}
