// Package userdata defines the task, profile, and food-journal records the
// engine reads from its host application.
package userdata

import (
	"context"
	"strings"
	"time"
)

// Category groups tasks by where they can be done. Store detection uses the
// same vocabulary.
type Category string

const (
	CategoryGrocery  Category = "grocery"
	CategoryPharmacy Category = "pharmacy"
	CategoryShopping Category = "shopping"
	CategoryHealth   Category = "health"
	CategoryFitness  Category = "fitness"
	CategoryWork     Category = "work"
	CategoryErrand   Category = "errand"
)

// Task is a pending to-do item. Location is a free-form place tag
// ("supermarket", "office"); tagged tasks are candidates for location
// reminders.
type Task struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Category  Category   `json:"category,omitempty" yaml:"category,omitempty"`
	Location  string     `json:"location,omitempty" yaml:"location,omitempty"`
	DueAt     *time.Time `json:"due_at,omitempty" yaml:"due_at,omitempty"`
	TimeBased bool       `json:"time_based,omitempty" yaml:"time_based,omitempty"`
	Completed bool       `json:"completed,omitempty" yaml:"completed,omitempty"`
}

// TaskQuery filters pending tasks. Zero fields do not filter. DueOn keeps
// tasks due on that calendar day plus undated tasks.
type TaskQuery struct {
	Categories       []Category
	LocationTagged   bool
	ExcludeTimeBased bool
	DueOn            time.Time
	Limit            int
}

// Matches reports whether t passes the query. Completed tasks never match.
func (q TaskQuery) Matches(t Task) bool {
	if t.Completed {
		return false
	}
	if len(q.Categories) > 0 && !containsCategory(q.Categories, t.Category) {
		return false
	}
	if q.LocationTagged && strings.TrimSpace(t.Location) == "" && t.Category == "" {
		return false
	}
	if q.ExcludeTimeBased && (t.TimeBased || t.DueAt != nil) {
		return false
	}
	if !q.DueOn.IsZero() && t.DueAt != nil && !sameDay(*t.DueAt, q.DueOn) {
		return false
	}
	return true
}

// Filter applies q to tasks, honouring Limit.
func (q TaskQuery) Filter(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !q.Matches(t) {
			continue
		}
		out = append(out, t)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

func containsCategory(list []Category, c Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Profile holds the user preferences that shape daily notifications.
type Profile struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	WakeTime string   `json:"wake_time,omitempty" yaml:"wake_time,omitempty"`
	BedTime  string   `json:"bed_time,omitempty" yaml:"bed_time,omitempty"`
	Tone     string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	Hobbies  []string `json:"hobbies,omitempty" yaml:"hobbies,omitempty"`
	Location string   `json:"location,omitempty" yaml:"location,omitempty"`
}

// FoodEntry is one food-journal capture.
type FoodEntry struct {
	Caption   string    `json:"caption" yaml:"caption"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	HasPhoto  bool      `json:"has_photo,omitempty" yaml:"has_photo,omitempty"`
}

// TaskSource queries pending tasks.
type TaskSource interface {
	PendingTasks(ctx context.Context, q TaskQuery) ([]Task, error)
}

// ProfileSource reads the user's profile.
type ProfileSource interface {
	Profile(ctx context.Context) (Profile, error)
}

// FoodJournal reads recent food-journal entries.
type FoodJournal interface {
	RecentEntries(ctx context.Context, since time.Time) ([]FoodEntry, error)
}
