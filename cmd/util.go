package cmd

import (
	"context"
	"io"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// lookPath is the function used to search for executables in PATH.
// It can be replaced in tests to avoid requiring actual executables.
var lookPath = exec.LookPath

// execCommand is the function used to execute external commands.
// It can be replaced in tests to avoid actual process execution.
var execCommand = exec.CommandContext

// mergeEnvVars merges and deduplicates environment variables.
// Later values override earlier values with the same key; a key keeps the
// position of its last occurrence.
func mergeEnvVars(envs ...[]string) []string {
	all := lo.Flatten(envs)
	last := make(map[string]int, len(all))
	for i, kv := range all {
		idx := strings.IndexByte(kv, '=')
		if idx <= 0 {
			continue
		}
		last[kv[:idx]] = i
	}

	return lo.Filter(all, func(kv string, i int) bool {
		idx := strings.IndexByte(kv, '=')
		return idx > 0 && last[kv[:idx]] == i
	})
}

// readDefinitions reads import input, rejecting invalid UTF-8, and drops
// trailing whitespace so a final newline or blank lines are not leftovers.
func readDefinitions(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", witherrors.WrapError(witherrors.FileSystemError, "failed to read input", err)
	}
	if !utf8.Valid(data) {
		return "", witherrors.NewError(witherrors.ParseError, "input is not valid UTF-8")
	}
	return strings.TrimRightFunc(string(data), unicode.IsSpace), nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
