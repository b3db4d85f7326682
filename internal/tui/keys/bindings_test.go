package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPageBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Handler: func() { got = "global" }})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Back", Handler: func() { got = "page" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if !r.HandleEvent("thread", ev) || got != "page" {
		t.Errorf("thread: got %q, want page", got)
	}
	if !r.HandleEvent("sessions", ev) || got != "global" {
		t.Errorf("sessions: got %q, want global", got)
	}
	if r.HandleEvent("sessions", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key handled")
	}
}

func TestHintsOrderAndVisibility(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help", Handler: func() {}})
	r.AddPage("sessions", &Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: func() {}})
	r.AddPage("sessions", &Action{Key: tcell.KeyRune, Rune: 'j', Hidden: true, Handler: func() {}})

	hints := r.Hints("sessions")
	if len(hints) != 2 {
		t.Fatalf("hints = %+v", hints)
	}
	if hints[0].Key != "Enter" || hints[1].Key != "?" {
		t.Errorf("order = %+v", hints)
	}
}

func TestSpecialKeyMatch(t *testing.T) {
	a := &Action{Key: tcell.KeyCtrlR}
	if !a.Matches(tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl)) {
		t.Error("ctrl-r should match")
	}
	if a.Matches(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)) {
		t.Error("rune r should not match ctrl-r")
	}
}
