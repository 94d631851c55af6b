package coursegen

import "strings"

// Candidate is one source in a priority-ordered lookup. Missing and present-but-empty
// are distinct: Missing is always skipped, an empty value is skipped only when the
// caller's emptiness predicate says so.
type Candidate[T any] struct {
	Source  string
	Value   T
	Present bool
}

func Present[T any](source string, v T) Candidate[T] {
	return Candidate[T]{Source: source, Value: v, Present: true}
}

func Missing[T any](source string) Candidate[T] {
	return Candidate[T]{Source: source}
}

func PresentIf[T any](source string, v T, ok bool) Candidate[T] {
	if !ok {
		return Missing[T](source)
	}
	return Present(source, v)
}

type Resolution[T any] struct {
	Value  T
	Source string
	Found  bool
}

// Resolve returns the first present candidate that isEmpty does not reject.
// A nil isEmpty accepts any present value, including zero values.
func Resolve[T any](isEmpty func(T) bool, candidates ...Candidate[T]) Resolution[T] {
	for _, c := range candidates {
		if !c.Present {
			continue
		}
		if isEmpty != nil && isEmpty(c.Value) {
			continue
		}
		return Resolution[T]{Value: c.Value, Source: c.Source, Found: true}
	}
	return Resolution[T]{}
}

func BlankString(s string) bool { return strings.TrimSpace(s) == "" }

func NonPositive(n int) bool { return n <= 0 }
