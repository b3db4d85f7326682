package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/tui/client"
	"github.com/matheus3301/convsync/internal/tui/keys"
	"github.com/matheus3301/convsync/internal/tui/model"
	"github.com/matheus3301/convsync/internal/tui/ui"
	"github.com/matheus3301/convsync/internal/tui/views"
)

// Page keys; each equals the Name of the view shown on it.
const (
	pageSessions = "Sessions"
	pageThread   = "Thread"
	pageDetails  = "Details"
	pageHelp     = "Help"

	refreshInterval = 5 * time.Second
	rpcTimeout      = 10 * time.Second
	rewatchDelay    = 2 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry
	flash    ui.FlashModel

	root       *tview.Flex
	pages      *ui.Pages
	daemonInfo *ui.DaemonInfo
	menu       *ui.Menu
	prompt     *ui.Prompt
	flashBar   *ui.FlashBar

	sessions *views.SessionList
	thread   *views.MessageThread
	details  *views.ConversationInfo
	help     *views.HelpView

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:        tview.NewApplication(),
		theme:      theme,
		vm:         model.NewViewModel(c),
		registry:   keys.NewRegistry(),
		pages:      ui.NewPages(),
		daemonInfo: ui.NewDaemonInfo(theme),
		menu:       ui.NewMenu(theme),
		prompt:     ui.NewPrompt(theme),
		flashBar:   ui.NewFlashBar(theme),
		sessions:   views.NewSessionList(theme),
		thread:     views.NewMessageThread(theme),
		details:    views.NewConversationInfo(theme),
		help:       views.NewHelpView(theme),
		ctx:        ctx,
		cancel:     cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	r := a.registry

	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command", Handler: func() { a.showPrompt(ui.PromptCommand) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help", Handler: func() { a.pages.Push(pageHelp) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Handler: a.Stop})

	r.AddPage(pageSessions, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: func() {
		if id := a.sessions.SelectedID(); id != "" {
			a.openConversation(id)
		}
	}})
	r.AddPage(pageSessions, &keys.Action{Key: tcell.KeyRune, Rune: 'n', Label: "n", Description: "New chat", Handler: func() { a.openConversation("") }})
	r.AddPage(pageSessions, &keys.Action{Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "Filter", Handler: func() { a.showPrompt(ui.PromptFilter) }})
	r.AddPage(pageSessions, &keys.Action{Key: tcell.KeyCtrlF, Label: "ctrl-f", Description: "Next page", Handler: func() {
		a.async(a.vm.NextPage, a.renderSessions)
	}})
	r.AddPage(pageSessions, &keys.Action{Key: tcell.KeyCtrlB, Label: "ctrl-b", Description: "Prev page", Handler: func() {
		a.async(a.vm.PrevPage, a.renderSessions)
	}})
	for n := '1'; n <= '9'; n++ {
		idx := int(n - '0')
		r.AddPage(pageSessions, &keys.Action{
			Key: tcell.KeyRune, Rune: n, Label: "1-9", Description: "Jump", Numeric: true, Hidden: n != '1',
			Handler: func() {
				if id := a.sessions.ByIndex(idx); id != "" {
					a.openConversation(id)
				}
			},
		})
	}

	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose", Handler: func() { a.app.SetFocus(a.thread.Composer()) }})
	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'o', Label: "o", Description: "Older", Handler: a.loadOlder})
	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "Retry failed", Handler: a.retryLastFailed})
	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'R', Label: "R", Description: "Refresh", Handler: a.refreshThread})
	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyCtrlR, Label: "ctrl-r", Hidden: true, Handler: a.refreshThread})
	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Details", Handler: a.showDetails})
	r.AddPage(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'c', Label: "c", Description: "Close", Handler: a.closeConversation})
}

func (a *App) setupCallbacks() {
	a.thread.SetOnSend(func(text string) {
		a.async(func(ctx context.Context) error {
			return a.vm.Send(ctx, text)
		}, func() {
			a.renderThread(true)
		})
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.sessions.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func([]string) {
		a.renderMenu()
		a.focusCurrent()
	})
}

func (a *App) setupLayout() {
	for _, c := range []ui.Component{a.sessions, a.thread, a.details, a.help} {
		a.pages.AddPage(c.Name(), c, true, false)
	}

	header := tview.NewFlex().
		AddItem(a.daemonInfo, 44, 0, false).
		AddItem(a.menu, 0, 1, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 5, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.root.SetBackgroundColor(a.theme.BgColor)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)

	a.daemonInfo.Update(nil)
	a.pages.Reset(pageSessions)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()

	if focused == a.thread.Composer() {
		if event.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return event
	}
	// Text inputs handle every other key themselves.
	if focused == a.prompt {
		return event
	}
	if _, ok := focused.(*tview.InputField); ok {
		return event
	}

	if event.Key() == tcell.KeyEscape {
		if a.pages.Current() == pageSessions {
			a.sessions.ClearFilter()
		} else {
			a.pages.Pop()
		}
		return nil
	}

	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "open", "o":
		if cmd.Args == "" {
			a.flash.Warn("usage: open <conversation id>")
			a.renderFlash()
			return
		}
		a.openConversation(cmd.Args)
	case "new":
		a.openConversation("")
	case "older":
		a.loadOlder()
	case "retry":
		a.retryLastFailed()
	case "refresh":
		a.refreshThread()
	case "close":
		a.closeConversation()
	case "sessions", "s":
		a.pages.Reset(pageSessions)
	case "help", "h":
		a.pages.Push(pageHelp)
	case "quit", "q":
		a.Stop()
	case "":
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
		a.renderFlash()
	}
}

// openConversation switches the thread to id. The previously open
// conversation is closed in the daemon first.
func (a *App) openConversation(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		defer cancel()

		if prev := a.vm.Active(); prev != "" && prev != id {
			if err := a.vm.Close(ctx); err != nil {
				a.flash.Err(err)
			}
		}
		err := a.vm.Open(ctx, id)
		if err != nil {
			a.flash.Err(err)
		}
		opened := a.vm.Active() != ""

		a.app.QueueUpdateDraw(func() {
			if opened {
				a.pages.Reset(pageSessions)
				a.pages.Push(pageThread)
				a.renderThread(true)
			}
			a.renderFlash()
		})
	}()
}

func (a *App) closeConversation() {
	a.async(a.vm.Close, func() {
		a.pages.Reset(pageSessions)
		a.renderSessions()
	})
}

func (a *App) loadOlder() {
	a.async(func(ctx context.Context) error {
		more, err := a.vm.LoadOlder(ctx)
		if err == nil && !more {
			a.flash.Info("beginning of conversation")
		}
		return err
	}, nil)
}

func (a *App) retryLastFailed() {
	a.async(func(ctx context.Context) error {
		ok, err := a.vm.RetryLastFailed(ctx)
		if err == nil && !ok {
			a.flash.Info("no failed message to retry")
		}
		return err
	}, nil)
}

func (a *App) refreshThread() {
	a.async(func(ctx context.Context) error {
		if err := a.vm.Refresh(ctx); err != nil {
			return err
		}
		return a.vm.LoadMessages(ctx)
	}, func() { a.renderThread(false) })
}

func (a *App) showDetails() {
	id, channel, state, msgs := a.vm.Thread()
	if id == "" {
		return
	}
	var session *convsyncv1.Session
	if s, ok := a.vm.Session(id); ok {
		session = &s
	}
	a.details.Update(id, channel, state, session, len(msgs))
	a.pages.Push(pageDetails)
}

// async runs fn off the UI goroutine, reports its error as a flash and then
// runs after on the UI goroutine.
func (a *App) async(fn func(ctx context.Context) error, after func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.flash.Err(err)
		}
		a.app.QueueUpdateDraw(func() {
			if after != nil {
				after()
			}
			a.renderFlash()
		})
	}()
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageDetails:
		a.app.SetFocus(a.details)
	case pageHelp:
		a.app.SetFocus(a.help)
	default:
		a.app.SetFocus(a.sessions)
	}
}

func (a *App) renderMenu() {
	a.menu.Update(a.registry.Hints(a.pages.Current()))
}

func (a *App) renderFlash() {
	a.flashBar.Update(a.flash.GetMessage())
}

func (a *App) renderSessions() {
	a.sessions.Update(a.vm.Sessions())
}

func (a *App) renderThread(follow bool) {
	id, channel, state, msgs := a.vm.Thread()
	if id == "" {
		return
	}
	a.thread.Update(id, channel, state, msgs, a.vm.HasMore(), follow)
}

func (a *App) renderStatus() {
	st := a.vm.Status()
	if st == nil {
		a.daemonInfo.Update(nil)
		return
	}
	data := &ui.DaemonData{
		Profile:      st.Profile,
		Gateway:      st.GatewayURL,
		GatewayOK:    st.GatewayOK,
		OpenChannels: len(st.Channels),
		Parked:       st.ParkedStatus,
		Uptime:       time.Duration(st.UptimeMs) * time.Millisecond,
	}
	for _, ch := range st.Channels {
		if ch.State != "CONNECTED" {
			data.Reconnecting++
		}
	}
	a.daemonInfo.Update(data)
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.refreshLoop()
	go a.watchLoop()
	return a.app.Run()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		statusErr := a.vm.LoadStatus(ctx)
		sessionsErr := a.vm.LoadSessions(ctx, a.vm.CurrentPage())
		cancel()

		a.app.QueueUpdateDraw(func() {
			if statusErr != nil {
				a.daemonInfo.Update(nil)
			} else {
				a.renderStatus()
			}
			if sessionsErr == nil {
				a.renderSessions()
			}
			a.renderFlash()
		})

		select {
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
	}
}

// watchLoop follows daemon events for the lifetime of the app, reopening the
// stream after failures.
func (a *App) watchLoop() {
	for {
		err := a.vm.Watch(a.ctx, a.onEvent)
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash.Warn("event stream lost: " + err.Error())
		}
		select {
		case <-time.After(rewatchDelay):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) onEvent(evt convsyncv1.ConversationEvent) {
	if evt.ConversationID != a.vm.Active() {
		return
	}
	switch evt.Kind {
	case convsyncv1.EventViewChanged:
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		err := a.vm.LoadMessages(ctx)
		cancel()
		if err != nil {
			a.flash.Err(err)
		}
		a.app.QueueUpdateDraw(func() {
			a.renderThread(evt.AutoScroll)
			a.renderFlash()
		})
	case convsyncv1.EventStateChanged:
		a.app.QueueUpdateDraw(func() { a.renderThread(false) })
	case convsyncv1.EventSendFailed:
		a.flash.Warn("send failed: " + evt.Error)
		a.app.QueueUpdateDraw(a.renderFlash)
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
