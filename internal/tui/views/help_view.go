package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/convsync/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

func (hv *HelpView) render() {
	k := ui.ColorTag(hv.theme.MenuKeyColor)
	key := func(s string) string { return fmt.Sprintf("[%s]%-8s[-:-:-]", k, s) }

	sections := []struct {
		title string
		rows  [][2]string
	}{
		{"Global Keys", [][2]string{
			{":", "Command mode"},
			{"?", "Help"},
			{"Esc", "Cancel / Go back"},
			{"q", "Quit"},
		}},
		{"Sessions", [][2]string{
			{"Enter", "Open conversation"},
			{"1-9", "Open Nth session"},
			{"n", "Start a new chat conversation"},
			{"/", "Filter by id, contact or last message"},
			{"Ctrl-F", "Next page"},
			{"Ctrl-B", "Previous page"},
		}},
		{"Thread", [][2]string{
			{"i", "Focus composer (Enter sends, Esc leaves)"},
			{"o", "Load older messages"},
			{"r", "Retry last failed message"},
			{"R", "Refresh from history"},
			{"d", "Conversation details"},
			{"c", "Close conversation"},
		}},
		{"Commands", [][2]string{
			{":open <id>", "Open conversation by id"},
			{":new", "Start a new chat conversation"},
			{":older", "Load older messages"},
			{":retry", "Retry last failed message"},
			{":refresh", "Refresh active conversation"},
			{":close", "Close active conversation"},
			{":help", "Show this help"},
			{":quit", "Quit application"},
		}},
	}

	for _, s := range sections {
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			_, _ = fmt.Fprintf(hv, "  %s %s\n", key(tview.Escape(r[0])), r[1])
		}
	}
}
