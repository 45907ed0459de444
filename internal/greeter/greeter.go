// Package greeter writes the fixed greeting to a file descriptor.
package greeter

import "golang.org/x/sys/unix"

// Message is the exact byte sequence written by Greet.
const Message = "Hello, World!\n"

var message = []byte(Message)

// Greet writes Message to fd with a single write(2). The result is not
// checked: callers exit 0 whether or not the write succeeded.
func Greet(fd int) {
	_, _ = unix.Write(fd, message)
}
