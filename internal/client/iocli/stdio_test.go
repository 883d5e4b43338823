package iocli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeInput возвращает файл, из которого читается input
func pipeInput(t *testing.T, input string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		_, _ = w.Write([]byte(input))
		_ = w.Close()
	}()
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewStdio_Defaults(t *testing.T) {
	stdio := NewStdio(nil, nil)
	assert.Equal(t, os.Stdin, stdio.in)
	assert.Equal(t, os.Stdout, stdio.out)
}

func TestStdio_Output(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdio(nil, &out)

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s\n", 1, "abc")
	_, err := stdio.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", out.String())
}

func TestStdio_ReadInput(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdio(pipeInput(t, "  user input \nsecond\n"), &out)

	first, err := stdio.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "user input", first)

	second, err := stdio.ReadInput("Again: ")
	require.NoError(t, err)
	assert.Equal(t, "second", second)
	assert.Equal(t, "Prompt: Again: ", out.String())
}

func TestStdio_ReadInput_NoTrailingNewline(t *testing.T) {
	stdio := NewStdio(pipeInput(t, "yes"), io.Discard)

	got, err := stdio.ReadInput("")
	require.NoError(t, err)
	assert.Equal(t, "yes", got)

	_, err = stdio.ReadInput("")
	assert.ErrorIs(t, err, io.EOF)
}

// Pipe не терминал, поэтому пароль читается как строка
func TestStdio_ReadPassword_NotTerminal(t *testing.T) {
	var out bytes.Buffer
	stdio := NewStdio(pipeInput(t, "correct horse battery\n"), &out)

	got, err := stdio.ReadPassword("Passphrase: ")
	require.NoError(t, err)
	assert.Equal(t, "correct horse battery", got)
	assert.Equal(t, "Passphrase: ", out.String())
}
