// Package ui prints user-facing messages and reads secrets and
// confirmations from the terminal.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/yarlson/tap"
	"golang.org/x/term"
)

// Writers used by the Print functions. Tests replace them.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	blue   = color.New(color.FgBlue)
	gray   = color.New(color.FgHiBlack)
	bold   = color.New(color.Bold)
)

func PrintSuccess(msg string) {
	fmt.Fprintf(Stdout, "%s %s\n", green.Sprint("✓"), msg)
}

func PrintWarn(msg string) {
	fmt.Fprintf(Stderr, "%s %s\n", yellow.Sprint("⚠"), msg)
}

func PrintError(msg string) {
	fmt.Fprintf(Stderr, "%s %s\n", red.Sprint("✗"), msg)
}

func PrintInfo(msg string) {
	fmt.Fprintln(Stdout, blue.Sprint(msg))
}

func PrintHeader(msg string) {
	fmt.Fprintln(Stdout, bold.Sprint(msg))
}

func PrintSection(msg string) {
	fmt.Fprintf(Stdout, "\n%s\n", bold.Sprintf("=== %s ===", msg))
}

// PrintGray prints a message in gray
func PrintGray(msg string) {
	fmt.Fprintln(Stdout, gray.Sprint(msg))
}

// PrintDefault prints a name followed by a gray "(default)" marker.
func PrintDefault(msg string) {
	fmt.Fprintf(Stdout, "%s %s\n", msg, gray.Sprint("(default)"))
}

// PromptSecret asks for a secret on the terminal without echo. When in is
// not a terminal it reads one line instead and prints no prompt.
func PromptSecret(in *os.File, prompt string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return ReadLine(in)
	}

	fmt.Fprintf(Stderr, "%s: ", prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// ReadLine reads one line from r without its line ending. A final line
// without a newline is accepted; empty input is io.EOF.
func ReadLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && line == "" {
		return "", io.EOF
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// Confirm asks a yes/no question. Cancelling counts as no.
func Confirm(ctx context.Context, message string) bool {
	return tap.Confirm(ctx, tap.ConfirmOptions{
		Message: message,
	})
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
