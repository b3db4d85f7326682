package views

import (
	"fmt"

	"github.com/rivo/tview"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/tui/ui"
)

// ConversationInfo displays the session record behind the open thread.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Update renders details for the conversation. session may be nil when the
// conversation was opened by id and is not on the current sessions page.
func (ci *ConversationInfo) Update(conversationID, channel, state string, session *convsyncv1.Session, messages int) {
	ci.Clear()

	fg := ui.ColorTag(ci.theme.FgColor)
	ct := ui.ColorTag(ci.theme.CounterColor)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		_, _ = fmt.Fprintf(ci, " [%s::b]%-14s[-:-:-] [%s]%s[-]\n", fg, label+":", ct, tview.Escape(sanitizeForTerminal(value)))
	}

	_, _ = fmt.Fprintln(ci)
	row("Conversation", conversationID)
	row("Channel", channel)
	row("Connection", state)
	row("Messages", fmt.Sprintf("%d loaded", messages))

	name := conversationID
	if session != nil {
		name = contactName(*session)
		row("Contact", session.FullName)
		row("Email", session.EmailAddress)
		row("Mobile", session.MobileNumber)
		row("Created", formatTimestamp(session.CreatedAtUnixMs))
		row("Last Active", formatTimestamp(lastActivity(*session)))
		row("Last Message", session.LastMessagePreview)
	}

	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(name)))
}
