package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"open widget_1", Command{Name: "open", Args: "widget_1"}},
		{"  OPEN   5585999999999  ", Command{Name: "open", Args: "5585999999999"}},
		{"new", Command{Name: "new"}},
		{"q", Command{Name: "q"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.input); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}
