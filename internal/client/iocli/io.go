// Package iocli is the terminal I/O used by CLI commands.
package iocli

//go:generate moq -out io_mock.go . IO

// IO is everything a command prints or asks for
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
