// Package counter implements the bounded counting loop whose final value
// becomes the process exit status.
package counter

// Bound is the value the loop counts up to.
const Bound = 5

// Count increments a counter from 0 until it equals bound and returns it.
// A bound below 1 never matches after an increment, so it is rejected by
// returning 0 without looping.
func Count(bound int) int {
	if bound < 1 {
		return 0
	}
	n := 0
	for {
		n++
		if n == bound {
			return n
		}
	}
}

// Steps reports each counter value the loop passes through, starting at the
// initial 0 and ending at bound.
func Steps(bound int) []int {
	steps := []int{0}
	n := 0
	for bound >= 1 {
		n++
		steps = append(steps, n)
		if n == bound {
			break
		}
	}
	return steps
}

// ExitStatus truncates n to the 8 bits the operating system keeps.
func ExitStatus(n int) int {
	return n & 0xff
}
