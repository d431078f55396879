package ui

import (
	"strings"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"TTY", nil, true, true},
		{"Pipe", nil, false, false},
		{"NoColor", map[string]string{"NO_COLOR": "1"}, true, false},
		{"NoColorBeatsForce", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, true, false},
		{"Force", map[string]string{"CLICOLOR_FORCE": "1"}, false, true},
		{"CLIColorOff", map[string]string{"CLICOLOR": "0"}, true, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			getenv := func(k string) string { return tc.env[k] }
			if got := shouldUseColor(getenv, func() bool { return tc.tty }); got != tc.want {
				t.Fatalf("shouldUseColor = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	SetColor(true)
	t.Cleanup(func() { SetColor(true) })

	if got := RenderAccent("x"); got != "\x1b[38;5;74mx\x1b[0m" {
		t.Fatalf("RenderAccent = %q", got)
	}
	if got := RenderMuted(""); got != "" {
		t.Fatalf("empty input should stay empty, got %q", got)
	}

	ForceNoColor()
	if got := RenderCommand("serve"); got != "serve" {
		t.Fatalf("RenderCommand without color = %q", got)
	}
}

func TestHighlight(t *testing.T) {
	SetColor(true)
	t.Cleanup(func() { SetColor(true) })

	got := Highlight("sky is skyfeed", "sky")
	if strings.Count(got, "\x1b[38;5;214msky\x1b[0m") != 2 {
		t.Fatalf("Highlight = %q", got)
	}
	if got := Highlight("sky is blue", "sk"); got != "sky is blue" {
		t.Fatalf("short filter should not highlight, got %q", got)
	}
	if got := Highlight("Sky", "sky"); got != "Sky" {
		t.Fatalf("match is case-sensitive, got %q", got)
	}

	SetColor(false)
	if got := Highlight("sky", "sky"); got != "sky" {
		t.Fatalf("Highlight without color = %q", got)
	}
}
