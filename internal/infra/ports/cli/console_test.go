package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/usecase"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantArg string
	}{
		{"", CommandNone, ""},
		{"   ", CommandNone, ""},
		{"hello there", CommandSay, "hello there"},
		{"  hi  ", CommandSay, "hi"},
		{"/next", CommandNext, ""},
		{"/N", CommandNext, ""},
		{"/quit", CommandQuit, ""},
		{"/exit now", CommandQuit, ""},
		{"/status", CommandStatus, ""},
		{"/dance", CommandUnknown, "/dance"},
	}

	for _, tt := range tests {
		got, arg := ParseLine(tt.line)
		if got != tt.want || arg != tt.wantArg {
			t.Fatalf("ParseLine(%q)=(%v, %q), want (%v, %q)", tt.line, got, arg, tt.want, tt.wantArg)
		}
	}
}

func TestConsole_MessagesPrintedOnce(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, "alice")

	at := time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC)
	first := []signaling.MessageRecord{
		{ID: 1, Text: "hi", SenderRef: "alice", Timestamp: at},
	}
	second := append(first, signaling.MessageRecord{ID: 2, Text: "hello", SenderRef: "bob", Timestamp: at})

	c.Messages(first)
	c.Messages(second)

	text := out.String()
	if n := strings.Count(text, "hi\n"); n != 1 {
		t.Fatalf("hi printed %d times, want 1:\n%s", n, text)
	}
	if !strings.Contains(text, "you") || !strings.Contains(text, "bob") {
		t.Fatalf("output misses senders:\n%s", text)
	}

	c.Reset()
	out.Reset()
	c.Messages(first)

	if !strings.Contains(out.String(), "hi") {
		t.Fatalf("after Reset message was not printed again")
	}
}

func TestConsole_Hooks(t *testing.T) {
	var out bytes.Buffer
	hooks := NewConsole(&out, "alice").Hooks()

	hooks.OnStatus(usecase.StatusConnected)
	hooks.OnPartner("bob")
	hooks.OnRemoteTrack(usecase.RemoteTrack{Kind: "audio", Codec: "audio/opus"})
	hooks.OnError(errors.New("boom"))

	text := out.String()
	for _, want := range []string{usecase.StatusConnected.Text(), "bob", "audio/opus", "boom"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output misses %q:\n%s", want, text)
		}
	}
}
