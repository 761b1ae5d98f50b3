package formula

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/deduce/internal/ir"
)

func init() {
	register("==", required("this"), []string{"is"}, func(a Args) []Result {
		v, ok := a.Scalar("this")
		if !ok {
			return nil
		}
		return one(v)
	})

	compare := func(test func(int) bool) Func {
		return func(a Args) []Result {
			this, ok1 := a.Scalar("this")
			than, ok2 := a.Scalar("than")
			if !ok1 || !ok2 {
				return nil
			}
			c, ok := order(this, than)
			if !ok || !test(c) {
				return nil
			}
			return pass()
		}
	}
	register(">", required("this", "than"), nil, compare(func(c int) bool { return c > 0 }))
	register(">=", required("this", "than"), nil, compare(func(c int) bool { return c >= 0 }))
	register("<", required("this", "than"), nil, compare(func(c int) bool { return c < 0 }))
	register("<=", required("this", "than"), nil, compare(func(c int) bool { return c <= 0 }))

	register("data/type", required("of"), []string{"is"}, func(a Args) []Result {
		v, ok := a.Scalar("of")
		if !ok {
			return nil
		}
		return one(ir.String(v.Kind().String()))
	})

	register("data/refer", required("of"), []string{"is"}, func(a Args) []Result {
		in, ok := a["of"]
		if !ok {
			return nil
		}
		var ref ir.Ref
		var err error
		if in.IsList {
			ref, err = ir.Refer(in.List)
		} else {
			ref, err = ir.Refer(in.Scalar)
		}
		if err != nil {
			return nil
		}
		return one(ref)
	})

	registerText()
	registerMath()
}

// order compares two scalars: numbers numerically across Int and Float,
// everything else only within one kind.
func order(a, b ir.Scalar) (int, bool) {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			if ai, aok := a.(ir.Int); aok {
				if bi, bok := b.(ir.Int); bok {
					return ir.Compare(ai, bi), true
				}
			}
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if a.Kind() != b.Kind() {
		return 0, false
	}
	return ir.Compare(a, b), true
}

func text(a Args, name string) (string, bool) {
	v, ok := a.Scalar(name)
	if !ok {
		return "", false
	}
	s, ok := v.(ir.String)
	return string(s), ok
}

func registerText() {
	unary := func(name string, fn func(string) []Result) {
		register(name, required("of"), []string{"is"}, func(a Args) []Result {
			s, ok := text(a, "of")
			if !ok {
				return nil
			}
			return fn(s)
		})
	}

	register("text/like", required("text", "pattern"), []string{"is"}, func(a Args) []Result {
		s, ok1 := text(a, "text")
		pattern, ok2 := text(a, "pattern")
		if !ok1 || !ok2 {
			return nil
		}
		re, err := globToRegexp(pattern)
		if err != nil || !re.MatchString(s) {
			return nil
		}
		return one(ir.String(s))
	})

	unary("text/length", func(s string) []Result {
		return one(ir.Int(utf8.RuneCountInString(s)))
	})

	unary("text/words", func(s string) []Result {
		return each(strings.Fields(s))
	})

	unary("text/lines", func(s string) []Result {
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimSuffix(line, "\r")
		}
		return each(lines)
	})

	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	unary("text/case/upper", func(s string) []Result {
		return one(ir.String(upper.String(s)))
	})
	unary("text/case/lower", func(s string) []Result {
		return one(ir.String(lower.String(s)))
	})

	unary("text/trim", func(s string) []Result {
		return one(ir.String(strings.TrimSpace(s)))
	})
	unary("text/trim/start", func(s string) []Result {
		return one(ir.String(strings.TrimLeftFunc(s, unicode.IsSpace)))
	})
	unary("text/trim/end", func(s string) []Result {
		return one(ir.String(strings.TrimRightFunc(s, unicode.IsSpace)))
	})

	register("text/includes", required("this", "slice"), nil, func(a Args) []Result {
		s, ok1 := text(a, "this")
		part, ok2 := text(a, "slice")
		if !ok1 || !ok2 || !strings.Contains(s, part) {
			return nil
		}
		return pass()
	})

	register("text/slice", []Slot{{Name: "of"}, {Name: "start"}, {Name: "end", Optional: true}}, []string{"is"}, func(a Args) []Result {
		s, ok := text(a, "of")
		if !ok {
			return nil
		}
		runes := []rune(s)
		start, ok := integer(a, "start")
		if !ok {
			return nil
		}
		end := int64(len(runes))
		if _, present := a["end"]; present {
			if end, ok = integer(a, "end"); !ok {
				return nil
			}
		}
		lo, hi := clamp(start, len(runes)), clamp(end, len(runes))
		if lo > hi {
			return one(ir.String(""))
		}
		return one(ir.String(string(runes[lo:hi])))
	})

	register("text/concat", required("of"), []string{"is"}, func(a Args) []Result {
		var b strings.Builder
		for _, item := range a["of"].Items() {
			s, ok := item.(ir.String)
			if !ok {
				return nil
			}
			b.WriteString(string(s))
		}
		return one(ir.String(b.String()))
	})

	register("utf8/to/text", required("of"), []string{"is"}, func(a Args) []Result {
		v, ok := a.Scalar("of")
		if !ok {
			return nil
		}
		b, ok := v.(ir.Bytes)
		if !ok || !utf8.Valid(b) {
			return nil
		}
		return one(ir.String(b))
	})

	unary("text/to/utf8", func(s string) []Result {
		return one(ir.Bytes(s))
	})
}

func each(items []string) []Result {
	out := make([]Result, len(items))
	for i, item := range items {
		out[i] = Result{"is": ir.String(item)}
	}
	return out
}

func integer(a Args, name string) (int64, bool) {
	v, ok := a.Scalar(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(ir.Int)
	return int64(i), ok
}

// clamp resolves a possibly negative index against length n.
func clamp(i int64, n int) int {
	if i < 0 {
		i += int64(n)
	}
	if i < 0 {
		return 0
	}
	if i > int64(n) {
		return n
	}
	return int(i)
}

// globToRegexp translates a glob where * matches any run of characters and
// ? exactly one. A backslash escapes the next character.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*':
			b.WriteString(`.*`)
		case r == '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(`\\`)
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

func toFloat(s ir.Scalar) (float64, bool) {
	switch v := s.(type) {
	case ir.Int:
		return float64(v), true
	case ir.Float:
		return float64(v), true
	default:
		return 0, false
	}
}

func registerMath() {
	register("+", required("of"), []string{"is"}, func(a Args) []Result {
		return fold(a["of"].Items(), 0, addInt, func(x, y float64) float64 { return x + y })
	})
	register("*", required("of"), []string{"is"}, func(a Args) []Result {
		return fold(a["of"].Items(), 1, mulInt, func(x, y float64) float64 { return x * y })
	})

	register("-", required("of", "by"), []string{"is"}, binary(
		func(x, y int64) (ir.Scalar, bool) {
			if r, ok := subInt(x, y); ok {
				return ir.Int(r), true
			}
			return ir.Float(float64(x) - float64(y)), true
		},
		func(x, y float64) (ir.Scalar, bool) { return ir.Float(x - y), true },
	))
	register("/", required("of", "by"), []string{"is"}, binary(
		func(x, y int64) (ir.Scalar, bool) {
			if y == 0 {
				return nil, false
			}
			if x%y == 0 && (x != math.MinInt64 || y != -1) {
				return ir.Int(x / y), true
			}
			return ir.Float(float64(x) / float64(y)), true
		},
		func(x, y float64) (ir.Scalar, bool) {
			if y == 0 {
				return nil, false
			}
			return ir.Float(x / y), true
		},
	))
	register("%", required("of", "by"), []string{"is"}, binary(
		func(x, y int64) (ir.Scalar, bool) {
			if y == 0 {
				return nil, false
			}
			return ir.Int(x % y), true
		},
		func(x, y float64) (ir.Scalar, bool) {
			if y == 0 {
				return nil, false
			}
			return ir.Float(math.Mod(x, y)), true
		},
	))

	register("**", required("of", "exponent"), []string{"is"}, func(a Args) []Result {
		base, ok1 := a.Scalar("of")
		exp, ok2 := a.Scalar("exponent")
		if !ok1 || !ok2 {
			return nil
		}
		if bi, ok := base.(ir.Int); ok {
			if ei, ok := exp.(ir.Int); ok && ei >= 0 {
				if r, ok := ipow(int64(bi), int64(ei)); ok {
					return one(ir.Int(r))
				}
			}
		}
		x, ok1 := toFloat(base)
		y, ok2 := toFloat(exp)
		if !ok1 || !ok2 {
			return nil
		}
		r := math.Pow(x, y)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil
		}
		return one(ir.Float(r))
	})

	register("math/absolute", required("of"), []string{"is"}, func(a Args) []Result {
		v, ok := a.Scalar("of")
		if !ok {
			return nil
		}
		switch n := v.(type) {
		case ir.Int:
			switch {
			case n == math.MinInt64:
				return one(ir.Float(-float64(n)))
			case n < 0:
				return one(-n)
			}
			return one(n)
		case ir.Float:
			return one(ir.Float(math.Abs(float64(n))))
		default:
			return nil
		}
	})
}

// fold reduces numbers with an integer operation while every operand is an
// Int, switching to floats as soon as one operand is a Float or the integer
// result overflows.
func fold(items []ir.Scalar, unit int64, ints func(x, y int64) (int64, bool), floats func(x, y float64) float64) []Result {
	acc := unit
	var facc float64
	isFloat := false
	for _, item := range items {
		switch n := item.(type) {
		case ir.Int:
			if isFloat {
				facc = floats(facc, float64(n))
				continue
			}
			r, ok := ints(acc, int64(n))
			if !ok {
				facc = floats(float64(acc), float64(n))
				isFloat = true
				continue
			}
			acc = r
		case ir.Float:
			if !isFloat {
				facc = float64(acc)
				isFloat = true
			}
			facc = floats(facc, float64(n))
		default:
			return nil
		}
	}
	if isFloat {
		return one(ir.Float(facc))
	}
	return one(ir.Int(acc))
}

func binary(ints func(x, y int64) (ir.Scalar, bool), floats func(x, y float64) (ir.Scalar, bool)) Func {
	return func(a Args) []Result {
		x, ok1 := a.Scalar("of")
		y, ok2 := a.Scalar("by")
		if !ok1 || !ok2 {
			return nil
		}
		xi, xInt := x.(ir.Int)
		yi, yInt := y.(ir.Int)
		if xInt && yInt {
			out, ok := ints(int64(xi), int64(yi))
			if !ok {
				return nil
			}
			return one(out)
		}
		xf, ok1 := toFloat(x)
		yf, ok2 := toFloat(y)
		if !ok1 || !ok2 {
			return nil
		}
		out, ok := floats(xf, yf)
		if !ok {
			return nil
		}
		return one(out)
	}
}

// ipow raises base to a non-negative exponent by squaring. It reports false
// when the result does not fit an int64.
func ipow(base, exp int64) (int64, bool) {
	result := int64(1)
	var ok bool
	for exp > 0 {
		if exp&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

func addInt(x, y int64) (int64, bool) {
	r := x + y
	if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

func subInt(x, y int64) (int64, bool) {
	r := x - y
	if (y > 0 && r > x) || (y < 0 && r < x) {
		return 0, false
	}
	return r, true
}

func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	if (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	r := x * y
	if r/y != x {
		return 0, false
	}
	return r, true
}
