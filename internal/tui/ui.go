// Package tui renders a live view of the worker state table.
package tui

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/warden/internal/statetable"
)

const refreshInterval = time.Second

// Fetch retrieves the current worker state table.
type Fetch func() (map[string]statetable.Record, error)

// Run displays the state table full-screen, refreshing once a second,
// until the context is cancelled or the user presses q or Esc.
func Run(ctx context.Context, fetch Fetch) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app := tview.NewApplication()
	table := tview.NewTable().SetBorders(false).SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Workers ")

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape,
			event.Rune() == 'q',
			event.Key() == tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	refreshCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			records, err := fetch()
			app.QueueUpdateDraw(func() {
				render(table, records, err)
			})
			select {
			case <-refreshCtx.Done():
				app.Stop()
				return
			case <-ticker.C:
			}
		}
	}()

	return app.SetRoot(table, true).Run()
}

var header = []string{"WORKER", "PID", "STATE", "SERVER", "RESTARTS", "UPTIME"}

func render(table *tview.Table, records map[string]statetable.Record, err error) {
	table.Clear()
	for col, title := range header {
		cell := tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1)
		table.SetCell(0, col, cell)
	}
	if err != nil {
		table.SetCell(1, 0, tview.NewTableCell(fmt.Sprintf("error: %v", err)).
			SetTextColor(tcell.ColorRed))
		return
	}

	idents := make([]string, 0, len(records))
	for ident := range records {
		idents = append(idents, ident)
	}
	sort.Strings(idents)

	for row, ident := range idents {
		rec := records[ident]
		uptime := "-"
		if !rec.StartedAt.IsZero() {
			uptime = time.Since(rec.StartedAt).Truncate(time.Second).String()
		}
		server := ""
		if rec.Server {
			server = "yes"
		}
		color := tcell.ColorWhite
		switch rec.State {
		case "Acked":
			color = tcell.ColorGreen
		case "Terminated", "Joined":
			color = tcell.ColorGray
		case "Restarting", "Starting":
			color = tcell.ColorOrange
		}
		cells := []string{
			ident,
			fmt.Sprintf("%d", rec.Pid),
			rec.State,
			server,
			fmt.Sprintf("%d", rec.Restarts),
			uptime,
		}
		for col, text := range cells {
			table.SetCell(row+1, col, tview.NewTableCell(text).SetTextColor(color))
		}
	}
}
