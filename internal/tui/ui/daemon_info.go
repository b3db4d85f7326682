package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// DaemonData is the header summary of the connected daemon.
type DaemonData struct {
	Profile      string
	Gateway      string
	GatewayOK    bool
	OpenChannels int
	Reconnecting int
	Parked       int32
	Uptime       time.Duration
}

// DaemonInfo displays daemon metadata in the header.
type DaemonInfo struct {
	*tview.TextView
	theme *Theme
}

// NewDaemonInfo creates a new daemon info panel.
func NewDaemonInfo(theme *Theme) *DaemonInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &DaemonInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the daemon info. A nil data means the daemon is unreachable.
func (di *DaemonInfo) Update(data *DaemonData) {
	di.Clear()
	fg := colorName(di.theme.FgColor)
	val := colorName(di.theme.CounterColor)
	if data == nil {
		_, _ = fmt.Fprintf(di, "[%s::b]Daemon:[-:-:-]  [%s]unreachable[-]", fg, colorName(di.theme.FlashErrColor))
		return
	}

	gateway := fmt.Sprintf("[%s]%s[-]", val, data.Gateway)
	if !data.GatewayOK {
		gateway = fmt.Sprintf("[%s]%s (down)[-]", colorName(di.theme.FlashErrColor), data.Gateway)
	}
	channels := fmt.Sprintf("%d", data.OpenChannels)
	if data.Reconnecting > 0 {
		channels += fmt.Sprintf(" (%d reconnecting)", data.Reconnecting)
	}

	_, _ = fmt.Fprintf(di,
		"[%s::b]Profile:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Gateway:[-:-:-]  %s\n"+
			"[%s::b]Open:[-:-:-]     [%s]%s[-]\n"+
			"[%s::b]Parked:[-:-:-]   [%s]%d[-]\n"+
			"[%s::b]Uptime:[-:-:-]   [%s]%s[-]",
		fg, val, data.Profile,
		fg, gateway,
		fg, val, channels,
		fg, val, data.Parked,
		fg, val, formatDuration(data.Uptime),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
