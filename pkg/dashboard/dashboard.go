// Package dashboard implements the `--dashboard` read-only viewer: a
// single-view gocui TUI that polls a supervisor's shared-state
// document and network log and renders them, the way the teacher's
// pkg/gui goes about periodic background refresh (gui.goEvery) and
// gocui wiring (gocui.NewGui/SetManager/MainLoop) — but with exactly
// one view and no user-editable state, since this is a consumer, not
// the supervisor itself.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jesseduffield/gocui"
	"github.com/sirupsen/logrus"

	"github.com/brainwires/aegis-wrap/pkg/state"

	"github.com/brainwires/aegis-wrap/pkg/netmon"
)

// lifecycleColor mirrors the teacher's presentation package use of
// fatih/color for at-a-glance panel status: green while healthy,
// yellow mid-transition, red once something needs attention.
func lifecycleColor(l state.Lifecycle) *color.Color {
	switch l {
	case state.Running:
		return color.New(color.FgGreen)
	case state.Restarting, state.Starting:
		return color.New(color.FgYellow)
	case state.Failed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

const viewName = "dashboard"
const refreshInterval = 500 * time.Millisecond

// Dashboard polls a single supervisor's published state and renders it
// in a scrolling, non-interactive gocui view.
type Dashboard struct {
	wrapperPID int
	log        *logrus.Entry
	g          *gocui.Gui
}

// New builds a dashboard targeting the supervisor running as wrapperPID.
func New(wrapperPID int, log *logrus.Entry) *Dashboard {
	return &Dashboard{wrapperPID: wrapperPID, log: log}
}

// Run starts the gocui main loop and blocks until the user quits with
// 'q' or Ctrl+C. Returns nil on a normal quit.
func (d *Dashboard) Run() error {
	g, err := gocui.NewGui(gocui.OutputNormal, false, gocui.NORMAL, false, map[rune]string{})
	if err != nil {
		return fmt.Errorf("starting dashboard terminal: %w", err)
	}
	defer g.Close()
	d.g = g

	g.SetManager(gocui.ManagerFunc(d.layout))

	if err := d.keybindings(g); err != nil {
		return err
	}

	d.goEvery(refreshInterval, d.refresh)

	err = g.MainLoop()
	if err == gocui.ErrQuit {
		return nil
	}
	return err
}

func (d *Dashboard) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	v, err := g.SetView(viewName, 0, 0, maxX-1, maxY-1, 0)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "aegis-wrap dashboard (read-only, q to quit)"
		v.Wrap = true
		v.Autoscroll = false
		if _, err := g.SetCurrentView(viewName); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dashboard) keybindings(g *gocui.Gui) error {
	quit := func(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }
	if err := g.SetKeybinding(viewName, 'q', gocui.ModNone, quit); err != nil {
		return err
	}
	return g.SetKeybinding(viewName, gocui.KeyCtrlC, gocui.ModNone, quit)
}

// goEvery mirrors the teacher's gui.goEvery: run once immediately, then
// on a ticker, routing each tick's render through g.Update so it's safe
// to touch view contents from outside gocui's own event loop.
func (d *Dashboard) goEvery(interval time.Duration, function func() string) {
	render := func() {
		text := function()
		d.g.Update(func(g *gocui.Gui) error {
			v, err := g.View(viewName)
			if err != nil {
				return nil
			}
			v.Clear()
			fmt.Fprint(v, text)
			return nil
		})
	}
	render()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			render()
		}
	}()
}

func (d *Dashboard) refresh() string {
	var b strings.Builder

	doc, err := state.Read(d.wrapperPID)
	if err != nil {
		fmt.Fprintf(&b, "no supervisor running with pid %d\n", d.wrapperPID)
		return b.String()
	}

	fmt.Fprintf(&b, "agent:      %s\n", doc.AgentName)
	fmt.Fprintf(&b, "lifecycle:  %s\n", lifecycleColor(doc.Lifecycle).Sprint(doc.Lifecycle))
	fmt.Fprintf(&b, "wrapper pid: %d\n", doc.WrapperPID)
	if doc.ChildPID != nil {
		fmt.Fprintf(&b, "child pid:  %d\n", *doc.ChildPID)
	}
	fmt.Fprintf(&b, "restarts:   %d\n", doc.RestartCount)
	fmt.Fprintf(&b, "uptime:     %ds\n", doc.UptimeSecs)

	if doc.Health != nil {
		h := doc.Health
		fmt.Fprintf(&b, "\nhealth:\n")
		fmt.Fprintf(&b, "  last activity: %ds ago\n", h.ActivityAgeSecs)
		fmt.Fprintf(&b, "  memory:        %d MB\n", h.MemoryMB)
		fmt.Fprintf(&b, "  cpu:           %.1f%%\n", h.CPUPercent)
		fmt.Fprintf(&b, "  unresponsive:  %d\n", h.UnresponsiveCount)
		if h.PendingRemediation != "" {
			fmt.Fprintf(&b, "  pending:       %s\n", h.PendingRemediation)
		}
	}

	events, err := netmon.ParseForWrapper(d.wrapperPID)
	if err == nil && len(events) > 0 {
		sum := netmon.Summarize(events, 5)
		fmt.Fprintf(&b, "\nnetwork:\n")
		fmt.Fprintf(&b, "  connects: %d (%d unique addresses)\n", sum.TotalConnects, sum.UniqueAddresses)
		fmt.Fprintf(&b, "  sent:     %s\n", sum.BytesSentHuman)
		fmt.Fprintf(&b, "  received: %s\n", sum.BytesRecvHuman)
		if len(sum.TopTargets) > 0 {
			fmt.Fprintf(&b, "  top targets:\n")
			for _, t := range sum.TopTargets {
				fmt.Fprintf(&b, "    %-25s %d\n", t.Target, t.Count)
			}
		}
	}

	return b.String()
}
