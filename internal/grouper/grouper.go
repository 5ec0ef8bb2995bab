// Package grouper chunks sequences into fixed-size groups.
package grouper

import "iter"

// Group yields consecutive groups of n values from seq. The last group is
// padded with fill when seq does not divide evenly. Values are pulled from
// seq one group at a time, so live sources are consumed in a single pass.
// A non-positive n yields nothing.
func Group[T any](seq iter.Seq[T], n int, fill T) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		if n <= 0 {
			return
		}

		group := make([]T, 0, n)
		for v := range seq {
			group = append(group, v)
			if len(group) < n {
				continue
			}
			if !yield(group) {
				return
			}
			group = make([]T, 0, n)
		}

		if len(group) == 0 {
			return
		}
		for len(group) < n {
			group = append(group, fill)
		}
		yield(group)
	}
}

// Pairs yields (even, odd) neighbours of seq, padding a trailing odd value with fill
func Pairs[T any](seq iter.Seq[T], fill T) iter.Seq2[T, T] {
	return func(yield func(T, T) bool) {
		for g := range Group(seq, 2, fill) {
			if !yield(g[0], g[1]) {
				return
			}
		}
	}
}
