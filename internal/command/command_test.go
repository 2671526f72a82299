package command

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunOk(t *testing.T) {
	r := NewRunner()
	var lines []string
	res := r.Run(context.Background(), Spec{Bin: "echo", Args: []string{"hello"}}, Killer{}, func(l string) {
		lines = append(lines, l)
	}, nil)
	if res.Kind != Ok {
		t.Fatalf("expected Ok, got %+v", res)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("unexpected stdout lines: %v", lines)
	}
}

func TestRunExitStatus(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), Spec{Bin: "sh", Args: []string{"-c", "exit 7"}}, Killer{}, nil, nil)
	if res.Kind != ExitStatusKind {
		t.Fatalf("expected ExitStatus, got %+v", res)
	}
	if res.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", res.ExitCode)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner()
	killer := Killer{Deadline: time.Now().Add(50 * time.Millisecond), Grace: 20 * time.Millisecond}
	res := r.Run(context.Background(), Spec{Bin: "sleep", Args: []string{"5"}}, killer, nil, nil)
	if res.Kind != TimeoutKind {
		t.Fatalf("expected Timeout, got %+v", res)
	}
}

func TestRunAborted(t *testing.T) {
	r := NewRunner()
	cancel := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cancel)
	}()
	killer := Killer{Cancel: cancel, Grace: 20 * time.Millisecond}
	res := r.Run(context.Background(), Spec{Bin: "sleep", Args: []string{"5"}}, killer, nil, nil)
	if res.Kind != AbortedKind {
		t.Fatalf("expected Aborted, got %+v", res)
	}
}

func TestRunExecutionError(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), Spec{Bin: "/no/such/binary-xyz"}, Killer{}, nil, nil)
	if res.Kind != ExecutionError {
		t.Fatalf("expected ExecutionError, got %+v", res)
	}
}

func TestRunStreamsStderr(t *testing.T) {
	r := NewRunner()
	var errLines []string
	res := r.Run(context.Background(), Spec{Bin: "sh", Args: []string{"-c", "echo oops 1>&2; exit 1"}}, Killer{}, nil, func(l string) {
		errLines = append(errLines, l)
	})
	if res.Kind != ExitStatusKind {
		t.Fatalf("expected ExitStatus, got %+v", res)
	}
	if len(errLines) != 1 || !strings.Contains(errLines[0], "oops") {
		t.Fatalf("unexpected stderr lines: %v", errLines)
	}
	if len(res.StderrTail) != 1 {
		t.Fatalf("expected stderr tail to capture the line, got %v", res.StderrTail)
	}
}
