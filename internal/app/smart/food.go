package smart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"nudge/internal/domain/userdata"
	"nudge/internal/infra/kv"
	"nudge/internal/infra/llm"
	"nudge/internal/observability"
)

// Food analysis cache keys. The date key holds an RFC 3339 timestamp.
const (
	FoodAnalysisKey     = "foodAnalysis"
	FoodAnalysisDateKey = "foodAnalysisDate"
)

const minFoodEntries = 3

// Pattern is a dietary pattern the analysis can report.
type Pattern string

const (
	PatternNone             Pattern = "none"
	PatternBalanced         Pattern = "balanced"
	PatternLateNightEating  Pattern = "late_night_eating"
	PatternSkippedBreakfast Pattern = "skipped_breakfast"
	PatternIrregularMeals   Pattern = "irregular_meals"
	PatternHighSugar        Pattern = "high_sugar"
	PatternLowVegetables    Pattern = "low_vegetables"
	PatternFrequentTakeout  Pattern = "frequent_takeout"
)

var knownPatterns = map[Pattern]bool{
	PatternNone: true, PatternBalanced: true, PatternLateNightEating: true,
	PatternSkippedBreakfast: true, PatternIrregularMeals: true, PatternHighSugar: true,
	PatternLowVegetables: true, PatternFrequentTakeout: true,
}

// FoodAnalysis is the cached result of one analysis.
type FoodAnalysis struct {
	Pattern Pattern `json:"pattern"`
	Title   string  `json:"title"`
	Insight string  `json:"insight"`
}

// Actionable reports whether the analysis warrants a notification.
func (a FoodAnalysis) Actionable() bool {
	return knownPatterns[a.Pattern] && a.Pattern != PatternNone && a.Pattern != PatternBalanced &&
		strings.TrimSpace(a.Insight) != ""
}

// analyzeFood runs in the background. Overlapping runs are collapsed.
func (o *Orchestrator) analyzeFood(ctx context.Context, gen uint64) {
	if o.deps.AI == nil || o.deps.Food == nil {
		return
	}
	if !o.analyzing.TryLock() {
		return
	}
	defer o.analyzing.Unlock()

	var err error
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanFoodAnalysis)
	defer func() { observability.EndSpan(span, err) }()

	now := o.now()
	entries, err := o.deps.Food.RecentEntries(ctx, now.AddDate(0, 0, -o.cfg.FoodLookbackDays))
	if err != nil {
		o.logger.Warn("Smart: food journal unavailable: %v", err)
		return
	}
	if len(entries) < minFoodEntries {
		o.logger.Debug("Smart: %d food entries; analysis skipped", len(entries))
		return
	}

	analysis, ok := o.cachedAnalysis(ctx, now)
	if !ok {
		analysis, err = o.runAnalysis(ctx, entries)
		if err != nil {
			o.logger.Warn("Smart: food analysis failed: %v", err)
			o.metrics.RecordAIFallback(ctx, SlotFoodInsight)
			return
		}
		o.saveAnalysis(ctx, now, analysis)
	}
	span.SetAttributes(attribute.String("nudge.food.pattern", string(analysis.Pattern)))

	if !analysis.Actionable() {
		return
	}
	at := nextMealTime(now, inferMealTimes(entries))
	title := analysis.Title
	if strings.TrimSpace(title) == "" {
		title = "🍽️ A pattern in your meals"
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		o.logger.Info("Smart: notifications cancelled during food analysis; insight dropped")
		return
	}
	if _, err := o.deps.Scheduler.ScheduleOnce(ctx, SlotFoodInsight, title, analysis.Insight, at, map[string]string{
		"type":    SlotFoodInsight,
		"pattern": string(analysis.Pattern),
	}); err != nil {
		o.logger.Warn("Smart: food insight not scheduled: %v", err)
		return
	}
	o.logger.Info("Smart: food insight (%s) set for %s", analysis.Pattern, at.Format(time.RFC3339))
}

func (o *Orchestrator) cachedAnalysis(ctx context.Context, now time.Time) (FoodAnalysis, bool) {
	raw, ok, err := o.deps.Store.Get(ctx, FoodAnalysisDateKey)
	if err != nil || !ok {
		return FoodAnalysis{}, false
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil || now.Sub(at) >= o.cfg.FoodAnalysisTTL {
		return FoodAnalysis{}, false
	}
	var a FoodAnalysis
	found, err := kv.LoadJSON(ctx, o.deps.Store, FoodAnalysisKey, &a)
	if err != nil || !found {
		return FoodAnalysis{}, false
	}
	return a, true
}

func (o *Orchestrator) saveAnalysis(ctx context.Context, now time.Time, a FoodAnalysis) {
	if err := kv.SaveJSON(ctx, o.deps.Store, FoodAnalysisKey, a); err != nil {
		o.logger.Warn("Smart: caching food analysis failed: %v", err)
		return
	}
	if err := o.deps.Store.Set(ctx, FoodAnalysisDateKey, now.Format(time.RFC3339)); err != nil {
		o.logger.Warn("Smart: caching food analysis date failed: %v", err)
	}
}

func (o *Orchestrator) runAnalysis(ctx context.Context, entries []userdata.FoodEntry) (FoodAnalysis, error) {
	var a FoodAnalysis
	if err := llm.Decode(ctx, o.deps.AI, foodPrompt(entries), &a); err != nil {
		return FoodAnalysis{}, err
	}
	a.Pattern = Pattern(strings.ToLower(strings.TrimSpace(string(a.Pattern))))
	if !knownPatterns[a.Pattern] {
		return FoodAnalysis{}, fmt.Errorf("unknown pattern %q", a.Pattern)
	}
	if a.Pattern != PatternNone && a.Pattern != PatternBalanced && strings.TrimSpace(a.Insight) == "" {
		return FoodAnalysis{}, errors.New("pattern without insight")
	}
	return a, nil
}

func foodPrompt(entries []userdata.FoodEntry) string {
	var b strings.Builder
	b.WriteString("Here is a food journal. Identify at most one dietary pattern.\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Timestamp.Format("Mon 15:04"), e.Caption)
	}
	b.WriteString("Allowed patterns: none, balanced, late_night_eating, skipped_breakfast, irregular_meals, high_sugar, low_vegetables, frequent_takeout.\n")
	b.WriteString(`Respond as {"pattern": "...", "title": "...", "insight": "..."}; insight is one friendly, non-judgmental sentence.`)
	return b.String()
}

type mealWindow struct {
	name       string
	start, end int // [start, end) hours
	fallback   int // -1: no fallback
}

var mealWindows = []mealWindow{
	{name: "breakfast", start: 5, end: 11, fallback: -1},
	{name: "lunch", start: 11, end: 15, fallback: 12},
	{name: "dinner", start: 17, end: 22, fallback: 19},
}

// inferMealTimes returns the modal photo hour inside each meal window. Ties
// go to the earlier hour. Windows without photos use their fallback hour;
// breakfast has none.
func inferMealTimes(entries []userdata.FoodEntry) []int {
	var hours []int
	for _, w := range mealWindows {
		counts := make(map[int]int)
		for _, e := range entries {
			if !e.HasPhoto {
				continue
			}
			if h := e.Timestamp.Hour(); h >= w.start && h < w.end {
				counts[h]++
			}
		}
		best, bestCount := -1, 0
		for h := w.start; h < w.end; h++ {
			if counts[h] > bestCount {
				best, bestCount = h, counts[h]
			}
		}
		if best < 0 {
			best = w.fallback
		}
		if best >= 0 {
			hours = append(hours, best)
		}
	}
	return hours
}

// nextMealTime returns the earliest meal hour strictly after now, on the
// hour.
func nextMealTime(now time.Time, hours []int) time.Time {
	var next time.Time
	for _, h := range hours {
		at := nextOccurrence(now, clock{hour: h})
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	if next.IsZero() {
		next = nextOccurrence(now, clock{hour: 12})
	}
	return next
}
