package smart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	"nudge/internal/infra/llm"
)

// Content is the wording of one notification.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c Content) valid() bool {
	return strings.TrimSpace(c.Title) != "" && strings.TrimSpace(c.Body) != ""
}

// content returns today's cached wording for slot, generating it with the AI
// collaborator or fallback on a miss. Unreadable cache entries are misses.
func (o *Orchestrator) content(ctx context.Context, slot string, now time.Time, prompt string, fallback Content) Content {
	key := dayKey(slot, now)
	var cached Content
	found, err := kv.LoadJSON(ctx, o.deps.Store, key, &cached)
	switch {
	case err != nil && !errors.Is(err, kv.ErrCorrupt):
		o.logger.Warn("Smart: reading %s failed: %v", key, err)
	case err != nil:
		o.logger.Debug("Smart: %v; regenerating", err)
	case found && cached.valid():
		return cached
	}

	c := o.generate(ctx, slot, prompt, fallback)
	if err := kv.SaveJSON(ctx, o.deps.Store, key, c); err != nil {
		o.logger.Warn("Smart: caching %s failed: %v", key, err)
	}
	return c
}

func (o *Orchestrator) generate(ctx context.Context, slot, prompt string, fallback Content) Content {
	if o.deps.AI == nil {
		return fallback
	}
	var c Content
	if err := llm.Decode(ctx, o.deps.AI, prompt, &c); err != nil || !c.valid() {
		if err == nil {
			err = errors.New("missing title or body")
		}
		o.logger.Warn("Smart: %s content generation failed, using fallback: %v", slot, err)
		o.metrics.RecordAIFallback(ctx, slot)
		return fallback
	}
	return c
}

func greeting(profile userdata.Profile) string {
	if name := strings.TrimSpace(profile.Name); name != "" {
		return "Good morning, " + name + "!"
	}
	return "Good morning!"
}

func taskTitles(tasks []userdata.Task, limit int) []string {
	n := min(limit, len(tasks))
	out := make([]string, 0, n)
	for _, t := range tasks[:n] {
		out = append(out, t.Title)
	}
	return out
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func morningPrompt(profile userdata.Profile, tasks []userdata.Task) string {
	var b strings.Builder
	b.WriteString("Write a wake-up notification for the user's morning.\n")
	if profile.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", profile.Name)
	}
	if profile.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", profile.Tone)
	}
	if profile.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", profile.Location)
	}
	if len(profile.Hobbies) > 0 {
		fmt.Fprintf(&b, "Hobbies: %s\n", strings.Join(profile.Hobbies, ", "))
	}
	if len(tasks) > 0 {
		fmt.Fprintf(&b, "Tasks today (%d): %s\n", len(tasks), strings.Join(taskTitles(tasks, 5), "; "))
	}
	b.WriteString(`Respond as {"title": "...", "body": "..."}; title under 40 characters, body under 120.`)
	return b.String()
}

// morningFallback picks wording by which context is available: tasks, then
// location, then hobbies.
func morningFallback(profile userdata.Profile, tasks []userdata.Task) Content {
	title := "☀️ " + greeting(profile)
	switch {
	case len(tasks) > 0:
		return Content{Title: title, Body: fmt.Sprintf("You have %s today, starting with %s.", plural(len(tasks), "task"), tasks[0].Title)}
	case profile.Location != "":
		return Content{Title: title, Body: fmt.Sprintf("See what's happening around %s today.", profile.Location)}
	case len(profile.Hobbies) > 0:
		return Content{Title: title, Body: fmt.Sprintf("Make a little time for %s today.", profile.Hobbies[0])}
	default:
		return Content{Title: title, Body: "A fresh day. What's the one thing you want to get done?"}
	}
}

func bedtimePrompt(profile userdata.Profile, tasks []userdata.Task) string {
	var b strings.Builder
	b.WriteString("Write a short wind-down notification for the user's bedtime.\n")
	if profile.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", profile.Name)
	}
	if profile.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", profile.Tone)
	}
	fmt.Fprintf(&b, "Open tasks (%d): %s\n", len(tasks), strings.Join(taskTitles(tasks, 5), "; "))
	b.WriteString(`Respond as {"title": "...", "body": "..."}; title under 40 characters, body under 120.`)
	return b.String()
}

func bedtimeFallback(tasks []userdata.Task) Content {
	return Content{
		Title: "🌙 Time to wind down",
		Body:  fmt.Sprintf("%s still open. Pick one for tomorrow: %s.", plural(len(tasks), "task"), tasks[0].Title),
	}
}
