package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
)

const helperEnv = "WITH_TEST_HELPER_PROCESS"

// TestHelperProcess is not a real test. It is the child process started by
// fakeExec.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	args = args[1:]

	switch args[0] {
	case "printenv":
		for _, name := range args[1:] {
			fmt.Printf("%s=%s\n", name, os.Getenv(name))
		}
		os.Exit(0)
	case "args":
		fmt.Println(strings.Join(args[1:], "|"))
		os.Exit(0)
	case "exit":
		code, _ := strconv.Atoi(args[1])
		os.Exit(code)
	}
	os.Exit(2)
}

// fakeExec makes use run this test binary as the child process.
func fakeExec(t *testing.T) {
	t.Helper()
	t.Setenv(helperEnv, "1")

	origExec, origLook := execCommand, lookPath
	lookPath = func(file string) (string, error) {
		if file == "missing-tool" {
			return "", exec.ErrNotFound
		}
		return file, nil
	}
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		return exec.CommandContext(ctx, os.Args[0], cs...)
	}
	t.Cleanup(func() { execCommand, lookPath = origExec, origLook })
}

func TestUseInjectsSecrets(t *testing.T) {
	setupTest(t)
	fakeExec(t)
	t.Setenv("SHARED", "from-parent")
	t.Setenv("INHERITED", "kept")

	mustRun(t, "SHARED=from-profile\nTOKEN=\"a b\"", "import", "-p", "dev")

	res := mustRun(t, "", "use", "-p", "dev", "--", "printenv", "SHARED", "TOKEN", "INHERITED")

	want := "SHARED=from-profile\nTOKEN=a b\nINHERITED=kept\n"
	if res.stdout != want {
		t.Errorf("child output = %q, want %q", res.stdout, want)
	}
}

func TestUseCommandString(t *testing.T) {
	setupTest(t)
	fakeExec(t)

	mustRun(t, "A=1", "import", "-p", "dev")

	res := mustRun(t, "", "use", "-p", "dev", "-c", `args "one two" 'three' four\ five`)
	if res.stdout != "one two|three|four five\n" {
		t.Errorf("child args = %q", res.stdout)
	}
}

func TestUseCommandStringErrors(t *testing.T) {
	setupTest(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unbalanced quote", []string{"use", "-c", `echo "oops`}},
		{"empty string", []string{"use", "-c", "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCmd(t, "", tt.args...)
			if !witherrors.IsType(res.err, witherrors.ValidationError) {
				t.Errorf("error = %v, want validation error", res.err)
			}
		})
	}

	res := runCmd(t, "", "use", "-c", "echo", "--", "extra")
	if res.err == nil {
		t.Error("-c together with positional arguments should be rejected")
	}
}

func TestUsePropagatesExitCode(t *testing.T) {
	dir := setupTest(t)
	fakeExec(t)

	mustRun(t, "A=1", "import", "-p", "dev")

	res := runCmd(t, "", "use", "-p", "dev", "--", "exit", "7")
	if got := ExitCode(res.err); got != 7 {
		t.Fatalf("ExitCode() = %d, want 7 (err = %v)", got, res.err)
	}
	if strings.Contains(res.stderr, "✗") {
		t.Errorf("a child exit status should not be printed as an error: %q", res.stderr)
	}

	logger, err := audit.NewLogger(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()
	entries, err := logger.LoadEntries()
	if err != nil {
		t.Fatal(err)
	}
	last := entries[len(entries)-1]
	if last.Event != audit.EventUse || last.Details["exit_code"] != float64(7) {
		t.Errorf("last audit entry = %+v", last)
	}
	if diff := cmp.Diff("exit", last.Details["command"]); diff != "" {
		t.Errorf("audited command mismatch (-want +got):\n%s", diff)
	}
}

func TestUseCommandNotFound(t *testing.T) {
	setupTest(t)
	fakeExec(t)

	res := runCmd(t, "", "use", "--", "missing-tool")
	if !witherrors.IsType(res.err, witherrors.RuntimeError) {
		t.Errorf("error = %v, want runtime error", res.err)
	}
}

func TestUseWarnsOnEmptyProfile(t *testing.T) {
	setupTest(t)
	fakeExec(t)

	res := mustRun(t, "", "use", "-p", "empty", "--", "exit", "0")
	if !strings.Contains(res.stderr, "has no secrets") {
		t.Errorf("expected a warning, stderr = %q", res.stderr)
	}
}

func TestMergeEnvVars(t *testing.T) {
	tests := []struct {
		name string
		envs [][]string
		want []string
	}{
		{
			name: "later wins and keeps last position",
			envs: [][]string{{"A=1", "B=2", "C=3"}, {"A=9"}},
			want: []string{"B=2", "C=3", "A=9"},
		},
		{
			name: "invalid entries dropped",
			envs: [][]string{{"=bad", "NOEQUALS", "OK=1"}},
			want: []string{"OK=1"},
		},
		{
			name: "values containing equals",
			envs: [][]string{{"URL=a=b"}, {"URL=c=d"}},
			want: []string{"URL=c=d"},
		},
		{
			name: "empty value is kept",
			envs: [][]string{{"A=1"}, {"A="}},
			want: []string{"A="},
		},
		{
			name: "nothing",
			envs: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnvVars(tt.envs...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mergeEnvVars() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
