package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"nudge/internal/app/geofence"
	"nudge/internal/app/reminder"
	"nudge/internal/domain/timeparse"
)

// isTTY reports whether both stdin and stdout are terminals.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorText(msg string) string   { return red("✗ " + msg) }
func successText(msg string) string { return green("✓ " + msg) }
func warnText(msg string) string    { return yellow("! " + msg) }

const timeLayout = "Mon Jan 2 15:04"

func printExtraction(w io.Writer, ex timeparse.Extraction) {
	if !ex.HasTime || ex.Reminder == nil {
		fmt.Fprintln(w, warnText("no time expression found"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", bold("Matched:"), cyan(ex.TimeString))
	if ex.Match != nil {
		fmt.Fprintf(w, "%s %s\n", bold("Pattern:"), gray(ex.Match.Pattern))
	}
	fmt.Fprintf(w, "%s %s %s\n", bold("When:"), ex.Reminder.Date.Format(timeLayout), gray("("+ex.Reminder.DisplayText+")"))
	if !ex.Reminder.IsValid {
		fmt.Fprintln(w, warnText("resolved time is in the past"))
	}
}

func printOutcome(w io.Writer, out reminder.NoteOutcome) {
	switch out.Status {
	case reminder.OutcomeScheduled, reminder.OutcomeModified:
		fmt.Fprintln(w, successText(fmt.Sprintf("%s at %s", out.Draft.Title, out.Draft.TriggerAt.Format(timeLayout))))
		fmt.Fprintf(w, "  %s %s\n", gray("id"), out.NotificationID)
	case reminder.OutcomeDismissed:
		fmt.Fprintln(w, warnText("dismissed"))
	case reminder.OutcomeNoTime:
		fmt.Fprintln(w, warnText("no time expression found; nothing scheduled"))
	case reminder.OutcomeInvalid:
		fmt.Fprintln(w, warnText(fmt.Sprintf("%s is in the past; nothing scheduled", out.Draft.DisplayText)))
	}
}

func printNotifications(w io.Writer, list []reminder.Notification, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, gray("no pending notifications"))
		return
	}
	for _, n := range list {
		slot := ""
		if n.SlotKey != "" {
			slot = gray(" [" + n.SlotKey + "]")
		}
		fmt.Fprintf(w, "%s  %s%s\n", cyan(n.TriggerAt.Format(timeLayout)), bold(n.Title), slot)
		fmt.Fprintf(w, "  %s %s %s\n", gray(n.ID), gray("in"), n.TriggerAt.Sub(now).Round(time.Minute))
	}
}

func printLocations(w io.Writer, locs []geofence.SavedLocation) {
	if len(locs) == 0 {
		fmt.Fprintln(w, gray("no saved locations"))
		return
	}
	for _, l := range locs {
		var triggers []string
		if l.NotifyOnEnter {
			triggers = append(triggers, "enter")
		}
		if l.NotifyOnExit {
			triggers = append(triggers, "exit")
		}
		fmt.Fprintf(w, "%s  %-6s %s %s\n", gray(l.ID), l.Type, bold(l.Name),
			gray(fmt.Sprintf("(%.5f, %.5f r=%.0fm %s)", l.Lat, l.Lng, l.Radius, strings.Join(triggers, "+"))))
	}
}

func printSettings(w io.Writer, s geofence.Settings) {
	row := func(name string, on bool) {
		state := red("off")
		if on {
			state = green("on")
		}
		fmt.Fprintf(w, "%-24s %s\n", name, state)
	}
	row("enabled", s.Enabled)
	row("smart_filtering_enabled", s.SmartFilteringEnabled)
	row("leave_home_reminder", s.LeaveHomeReminder)
	row("auto_detect_stores", s.AutoDetectStores)
}
