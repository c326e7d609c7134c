package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestLoggerLevels(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name      string
		logger    func(out, errOut *bytes.Buffer) Logger
		wantInfo  bool
		wantDebug bool
	}{
		{"quiet", func(o, e *bytes.Buffer) Logger { return Logger{Out: o, Err: e} }, false, false},
		{"verbose", func(o, e *bytes.Buffer) Logger { return Logger{Verbose: true, Out: o, Err: e} }, true, false},
		{"debug", func(o, e *bytes.Buffer) Logger { return Logger{Debug: true, Out: o, Err: e} }, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			l := tt.logger(&out, &errOut)

			l.Infof("stored %d chunks", 3)
			l.Debugf("chunk %s", "bafk")
			l.Warnf("retrying")

			if got := strings.Contains(out.String(), "[info] stored 3 chunks"); got != tt.wantInfo {
				t.Errorf("info shown = %v, want %v (out=%q)", got, tt.wantInfo, out.String())
			}
			if got := strings.Contains(out.String(), "[debug] chunk bafk"); got != tt.wantDebug {
				t.Errorf("debug shown = %v, want %v (out=%q)", got, tt.wantDebug, out.String())
			}
			if !strings.Contains(errOut.String(), "[warn] retrying") {
				t.Errorf("warnings should always be shown, got %q", errOut.String())
			}
		})
	}
}

func TestErrorfAndReturn(t *testing.T) {
	var errOut bytes.Buffer
	err := Logger{Err: &errOut}.ErrorfAndReturn("manifest %s rejected", "m1")

	if err == nil || err.Error() != "manifest m1 rejected" {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut.String(), "manifest m1 rejected") {
		t.Fatalf("expected message on stderr, got %q", errOut.String())
	}
}
