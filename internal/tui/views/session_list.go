package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/tui/ui"
)

// SessionList is the registry page of active conversations.
type SessionList struct {
	*tview.Table
	theme    *ui.Theme
	sessions []convsyncv1.Session
	page     convsyncv1.PageInfo
	listErr  string
	filter   string
}

// NewSessionList creates a new session table.
func NewSessionList(theme *ui.Theme) *SessionList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	sl := &SessionList{Table: table, theme: theme}
	sl.render()
	return sl
}

// Name implements ui.Component.
func (sl *SessionList) Name() string { return "Sessions" }

// Update replaces the listed page. listErr is shown instead of an empty
// table when the registry could not be read.
func (sl *SessionList) Update(sessions []convsyncv1.Session, page convsyncv1.PageInfo, listErr string) {
	sl.sessions = sessions
	sl.page = page
	sl.listErr = listErr
	sl.render()
}

// SetFilter sets the active filter text and re-renders.
func (sl *SessionList) SetFilter(filter string) {
	sl.filter = strings.ToLower(strings.TrimSpace(filter))
	sl.render()
}

// ClearFilter clears the active filter.
func (sl *SessionList) ClearFilter() {
	sl.filter = ""
	sl.render()
}

func (sl *SessionList) visible() []convsyncv1.Session {
	if sl.filter == "" {
		return sl.sessions
	}
	var out []convsyncv1.Session
	for _, s := range sl.sessions {
		hay := strings.ToLower(s.ID + " " + contactName(s) + " " + s.LastMessagePreview)
		if strings.Contains(hay, sl.filter) {
			out = append(out, s)
		}
	}
	return out
}

func (sl *SessionList) render() {
	sl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ID", 1},
		{" CHANNEL", 0},
		{" CONTACT", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		sl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(sl.theme.TableHeaderFg).
			SetBackgroundColor(sl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	if sl.listErr != "" {
		sl.SetCell(1, 0, tview.NewTableCell(" registry unavailable: "+tview.Escape(sl.listErr)).
			SetSelectable(false).
			SetTextColor(sl.theme.FlashErrColor))
		sl.SetTitle(" Sessions (error) ")
		return
	}

	rows := sl.visible()
	for i, s := range rows {
		row := i + 1
		cell := func(text string, exp int) *tview.TableCell {
			return tview.NewTableCell(" " + tview.Escape(sanitizeForTerminal(text))).
				SetExpansion(exp).
				SetTextColor(sl.theme.FgColor)
		}
		sl.SetCell(row, 0, cell(s.ID, 1))
		sl.SetCell(row, 1, cell(s.Channel, 0))
		sl.SetCell(row, 2, cell(contactName(s), 1))
		sl.SetCell(row, 3, cell(s.LastMessagePreview, 2))
		sl.SetCell(row, 4, tview.NewTableCell(formatTimestamp(lastActivity(s))).
			SetTextColor(sl.theme.FgColor).
			SetAlign(tview.AlignRight))
	}

	pages := int32(1)
	if sl.page.Limit > 0 && sl.page.Total > 0 {
		pages = (sl.page.Total + sl.page.Limit - 1) / sl.page.Limit
	}
	current := int32(1)
	if sl.page.Limit > 0 {
		current = sl.page.Offset/sl.page.Limit + 1
	}
	title := fmt.Sprintf(" Sessions (%d) page %d/%d ", sl.page.Total, current, pages)
	if sl.filter != "" {
		title = fmt.Sprintf(" Sessions (%d/%d) filter: %s ", len(rows), len(sl.sessions), sl.filter)
	}
	sl.SetTitle(title)
}

// SelectedID returns the id of the highlighted session.
func (sl *SessionList) SelectedID() string {
	row, _ := sl.GetSelection()
	return sl.ByIndex(row)
}

// ByIndex returns the id of the Nth visible session (1-based).
func (sl *SessionList) ByIndex(n int) string {
	rows := sl.visible()
	if sl.listErr != "" || n < 1 || n > len(rows) {
		return ""
	}
	return rows[n-1].ID
}

func contactName(s convsyncv1.Session) string {
	switch {
	case s.FullName != "":
		return s.FullName
	case s.EmailAddress != "":
		return s.EmailAddress
	case s.MobileNumber != "":
		return s.MobileNumber
	}
	return "-"
}

func lastActivity(s convsyncv1.Session) int64 {
	if s.LastMessageAtUnixMs > 0 {
		return s.LastMessageAtUnixMs
	}
	return s.CreatedAtUnixMs
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
