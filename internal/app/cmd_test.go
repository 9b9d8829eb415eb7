package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to serve", nil, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"sweep", []string{"sweep"}, CommandSweep},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"help flag", []string{"--help"}, CommandHelp},
		{"extra args ignored", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownIsError(t *testing.T) {
	if _, err := ParseCommand([]string{"serv"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestWriteUsage_ListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	WriteUsage(&buf)

	for _, c := range commands {
		if !strings.Contains(buf.String(), string(c.cmd)) {
			t.Errorf("usage does not mention %q:\n%s", c.cmd, buf.String())
		}
	}
}
