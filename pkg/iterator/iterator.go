// Package iterator provides small range-over-func helpers used to walk
// fixed-size ranges (tag slots 0-63) without a hand-rolled index loop at
// every call site.
package iterator

// IterateUp returns an iterator that yields numbers from lo up to, but not
// including, hi.
func IterateUp(lo, hi int) func(yield func(int) bool) {
	return func(yield func(int) bool) {
		for i := lo; i < hi; i++ {
			if !yield(i) {
				return
			}
		}
	}
}
