// Package guard enforces programmer contracts. Violations panic with a Violation value so that callers which
// expect them, such as tests, can tell them apart from other panics.
package guard

import "fmt"

// Violation is the value passed to panic when a contract is broken.
type Violation string

// Error ...
func (v Violation) Error() string {
	return string(v)
}

// Failf panics with a Violation formatted from format and args.
func Failf(format string, args ...any) {
	panic(Violation(fmt.Sprintf(format, args...)))
}

// Assert panics with a Violation formatted from format and args if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		Failf(format, args...)
	}
}

// Run calls fn and recovers a Violation raised by it. Any other panic is passed on. ok is false if fn panicked
// with a Violation.
func Run(fn func()) (v Violation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if violation, is := r.(Violation); is {
				v, ok = violation, false
				return
			}
			panic(r)
		}
	}()
	fn()
	return "", true
}
