// greeter - write "Hello, World!" to standard output
//
// Usage:
//
//	greeter
//
// Arguments and environment are ignored. The exit status is always 0.
package main

import (
	"os"

	"github.com/mbrock/asmhello/internal/greeter"
)

func main() {
	greeter.Greet(1)
	os.Exit(0)
}
