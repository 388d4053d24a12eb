package logger

import (
	"bytes"
	"strings"
	"testing"
)

func newBufferLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := New(Config{
		Level:    level,
		Output:   &buf,
		ShowTime: false,
	})
	return log, &buf
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(WARN)

	log.Infof("hidden %d", 1)
	log.Warnf("shown %d", 2)
	log.Errorf("also shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO message should be filtered at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Errorf("missing WARN line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] also shown") {
		t.Errorf("missing ERROR line: %q", out)
	}
}

func TestWithPrefixSharesSink(t *testing.T) {
	log, buf := newBufferLogger(INFO)
	child := log.WithPrefix("[req 1234]").WithPrefix("[mix]")

	child.Infof("started")
	log.SetLevel(WARN)
	child.Infof("suppressed")

	out := buf.String()
	if !strings.Contains(out, "[req 1234] [mix] started") {
		t.Errorf("expected nested prefix, got %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Errorf("child should follow parent level change: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"WARNING": WARN,
		" error ": ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
