package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/tui/ui"
)

// MessageThread displays one reconciled conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if strings.TrimSpace(text) != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return "Thread" }

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders the thread. msgs is already in display order. follow keeps
// the view pinned to the newest message; otherwise the scroll offset is kept.
func (mt *MessageThread) Update(conversationID, channel, state string, msgs []convsyncv1.Message, hasMore, follow bool) {
	row, col := mt.messages.GetScrollOffset()
	mt.messages.Clear()
	mt.messages.SetTitle(fmt.Sprintf(" %s [%s] %s ", conversationID, channel, stateLabel(state)))

	if hasMore && len(msgs) > 0 {
		_, _ = fmt.Fprintf(mt.messages, "[::d]  ... press o for older messages[-:-:-]\n\n")
	}
	for _, m := range msgs {
		_, _ = fmt.Fprint(mt.messages, mt.formatMessage(m))
	}

	if follow {
		mt.messages.ScrollToEnd()
	} else {
		mt.messages.ScrollTo(row, col)
	}
}

func (mt *MessageThread) formatMessage(m convsyncv1.Message) string {
	who := m.Sender
	color := ui.ColorTag(mt.theme.InboundColor)
	if m.Direction == "outbound" {
		who = "You"
		color = ui.ColorTag(mt.theme.OutboundColor)
	}
	if who == "" {
		who = "visitor"
	}

	body := tview.Escape(sanitizeForTerminal(m.Content))
	if m.MediaRef != "" {
		body = strings.TrimSpace(body + " [::u]" + tview.Escape(m.MediaRef) + "[::-]")
	}

	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-] %s\n%s\n\n",
		color, tview.Escape(sanitizeForTerminal(who)),
		formatTimestamp(m.SentAtUnixMs),
		mt.statusGlyph(m),
		body)
}

// statusGlyph renders the delivery state of outbound messages.
func (mt *MessageThread) statusGlyph(m convsyncv1.Message) string {
	if m.Direction != "outbound" {
		return ""
	}
	var glyph string
	var color tcell.Color
	switch m.Status {
	case "pending":
		glyph, color = "…", mt.theme.StatusPendingColor
	case "sent":
		glyph, color = "✓", mt.theme.StatusSentColor
	case "delivered":
		glyph, color = "✓✓", mt.theme.StatusDeliveredColor
	case "read":
		glyph, color = "✓✓", mt.theme.StatusReadColor
	case "failed":
		glyph, color = "✗ failed (r to retry)", mt.theme.StatusFailedColor
	default:
		return ""
	}
	return fmt.Sprintf("[%s]%s[-]", ui.ColorTag(color), glyph)
}

func stateLabel(state string) string {
	switch state {
	case "":
		return ""
	case "CONNECTED":
		return "●"
	default:
		return strings.ToLower(state)
	}
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
