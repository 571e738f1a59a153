package types

import (
	"fmt"
	"strings"
)

// TypeCode is one parameter code of a registry signature.
//
// Signatures are written "<params:return>", e.g. "<nn?:n>" for a function
// taking a number and an optional number and returning a number. A code may be
// followed by '?' (optional), '+' (one or more) or '*' (zero or more); such a
// suffix is only legal on the last parameter.
type TypeCode byte

// Signature codes.
const (
	TypeNumber   TypeCode = 'n' // NUMBER expression
	TypeBoolean  TypeCode = 'b' // BOOLEAN expression
	TypeString   TypeCode = 's' // STRING expression
	TypeDate     TypeCode = 'd' // DATE expression
	TypeAny      TypeCode = 'x' // MIXED expression
	TypeSame     TypeCode = 'a' // SAME expression
	TypeUID      TypeCode = 'u' // UID literal
	TypeInteger  TypeCode = 'i' // signed integer literal
	TypeDateLit  TypeCode = 't' // date literal
	TypeName     TypeCode = 'e' // identifier from an option list
	TypeVariable TypeCode = 'v' // rule variable reference
)

// ParamForm is the syntactic form a parameter slot accepts.
type ParamForm uint8

// Parameter forms.
const (
	FormExpr ParamForm = iota
	FormUID
	FormInteger
	FormDate
	FormName
	FormRuleVariable
)

// Param is one declared parameter of a function or modifier.
type Param struct {
	Name     string
	Type     ValueType
	Form     ParamForm
	Optional bool
	Variadic bool

	// Options lists the valid identifiers of a FormName slot; OptionLabel
	// names them in error messages.
	Options     []string
	OptionLabel string
}

// Signature is a parsed registry signature.
type Signature struct {
	Params  []Param
	Returns ValueType
}

var typeCodes = map[TypeCode]struct {
	name string
	typ  ValueType
	form ParamForm
}{
	TypeNumber:   {"number", ValueNumber, FormExpr},
	TypeBoolean:  {"boolean", ValueBoolean, FormExpr},
	TypeString:   {"text", ValueString, FormExpr},
	TypeDate:     {"date", ValueDate, FormExpr},
	TypeAny:      {"value", ValueMixed, FormExpr},
	TypeSame:     {"value", ValueSame, FormExpr},
	TypeUID:      {"uid", ValueString, FormUID},
	TypeInteger:  {"integer", ValueNumber, FormInteger},
	TypeDateLit:  {"date", ValueDate, FormDate},
	TypeName:     {"name", ValueString, FormName},
	TypeVariable: {"variable", ValueMixed, FormRuleVariable},
}

// ParseSignature parses a signature string such as "<ss+:b>".
// An omitted return type means MIXED.
func ParseSignature(sig string) (*Signature, error) {
	if !strings.HasPrefix(sig, "<") || !strings.HasSuffix(sig, ">") {
		return nil, fmt.Errorf("invalid signature format %q", sig)
	}
	body := sig[1 : len(sig)-1]
	params, ret, hasRet := strings.Cut(body, ":")

	result := &Signature{Returns: ValueMixed}
	for i := 0; i < len(params); i++ {
		code := TypeCode(params[i])
		info, ok := typeCodes[code]
		if !ok {
			return nil, fmt.Errorf("unknown type code %q in signature %q", code, sig)
		}
		p := Param{Name: info.name, Type: info.typ, Form: info.form}
		if i+1 < len(params) {
			switch params[i+1] {
			case '?':
				p.Optional = true
				i++
			case '+':
				p.Variadic = true
				i++
			case '*':
				p.Variadic = true
				p.Optional = true
				i++
			}
		}
		if (p.Optional || p.Variadic) && i+1 < len(params) {
			return nil, fmt.Errorf("optional or repeated parameter must be last in signature %q", sig)
		}
		result.Params = append(result.Params, p)
	}

	if hasRet {
		if len(ret) != 1 {
			return nil, fmt.Errorf("invalid return type in signature %q", sig)
		}
		info, ok := typeCodes[TypeCode(ret[0])]
		if !ok || info.form != FormExpr {
			return nil, fmt.Errorf("invalid return type %q in signature %q", ret, sig)
		}
		result.Returns = info.typ
	}
	return result, nil
}

// MustParseSignature is like ParseSignature but panics on error. It is used
// to build the registry tables at package initialisation.
func MustParseSignature(sig string) *Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return s
}

// ParamAt returns the declared parameter for argument index i; the last
// parameter repeats for variadic signatures.
func ParamAt(params []Param, i int) (Param, bool) {
	if len(params) == 0 {
		return Param{}, false
	}
	if i < len(params) {
		return params[i], true
	}
	last := params[len(params)-1]
	if last.Variadic {
		return last, true
	}
	return Param{}, false
}

// MinArgs returns the number of arguments that must be present.
func MinArgs(params []Param) int {
	n := 0
	for _, p := range params {
		if !p.Optional {
			n++
		}
	}
	return n
}
