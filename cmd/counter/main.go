// counter - count to five and exit with the count
//
// Usage:
//
//	counter
//
// Nothing is written to standard output. The exit status is 5.
package main

import (
	"os"

	"github.com/mbrock/asmhello/internal/counter"
)

func main() {
	os.Exit(counter.ExitStatus(counter.Count(counter.Bound)))
}
