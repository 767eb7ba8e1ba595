package geofence

import (
	"strconv"
	"strings"

	"nudge/internal/domain/userdata"
)

type chain struct {
	match string
	name  string
}

type storeCategory struct {
	category userdata.Category
	emoji    string
	label    string
	chains   []chain
}

// storeCategories is ordered; the first category with a matching chain wins.
var storeCategories = []storeCategory{
	{
		category: userdata.CategoryGrocery, emoji: "🛒", label: "grocery store",
		chains: []chain{
			{"whole foods", "Whole Foods"}, {"trader joe", "Trader Joe's"}, {"safeway", "Safeway"},
			{"kroger", "Kroger"}, {"aldi", "Aldi"}, {"lidl", "Lidl"}, {"publix", "Publix"},
			{"wegmans", "Wegmans"}, {"costco", "Costco"}, {"sprouts", "Sprouts"},
			{"h-e-b", "H-E-B"}, {"albertsons", "Albertsons"}, {"food lion", "Food Lion"},
			{"stop & shop", "Stop & Shop"}, {"tesco", "Tesco"}, {"sainsbury", "Sainsbury's"},
			{"supermarket", "the supermarket"}, {"grocery", "the grocery store"},
		},
	},
	{
		category: userdata.CategoryPharmacy, emoji: "💊", label: "pharmacy",
		chains: []chain{
			{"cvs", "CVS"}, {"walgreens", "Walgreens"}, {"rite aid", "Rite Aid"},
			{"duane reade", "Duane Reade"}, {"boots", "Boots"}, {"pharmacy", "the pharmacy"},
			{"drugstore", "the drugstore"},
		},
	},
	{
		category: userdata.CategoryShopping, emoji: "🛍️", label: "store",
		chains: []chain{
			{"target", "Target"}, {"walmart", "Walmart"}, {"best buy", "Best Buy"},
			{"ikea", "IKEA"}, {"home depot", "Home Depot"}, {"lowe's", "Lowe's"},
			{"macy's", "Macy's"}, {"nordstrom", "Nordstrom"}, {"mall", "the mall"},
			{"shopping center", "the shopping center"},
		},
	},
	{
		category: userdata.CategoryHealth, emoji: "🏥", label: "clinic",
		chains: []chain{
			{"hospital", "the hospital"}, {"urgent care", "urgent care"}, {"medical center", "the medical center"},
			{"clinic", "the clinic"}, {"dental", "the dentist"}, {"dentist", "the dentist"},
		},
	},
	{
		category: userdata.CategoryFitness, emoji: "💪", label: "gym",
		chains: []chain{
			{"planet fitness", "Planet Fitness"}, {"la fitness", "LA Fitness"}, {"24 hour fitness", "24 Hour Fitness"},
			{"equinox", "Equinox"}, {"crossfit", "CrossFit"}, {"ymca", "the YMCA"},
			{"yoga", "the yoga studio"}, {"fitness", "the gym"}, {"gym", "the gym"},
		},
	},
	{
		category: userdata.CategoryWork, emoji: "💼", label: "office",
		chains: []chain{
			{"wework", "WeWork"}, {"regus", "Regus"}, {"coworking", "the coworking space"},
			{"business center", "the business center"}, {"headquarters", "the office"},
		},
	},
	{
		category: userdata.CategoryErrand, emoji: "📋", label: "errand stop",
		chains: []chain{
			{"post office", "the post office"}, {"usps", "USPS"}, {"fedex", "FedEx"},
			{"ups store", "The UPS Store"}, {"dry clean", "the dry cleaner"}, {"laundromat", "the laundromat"},
			{"dmv", "the DMV"}, {"library", "the library"}, {"bank", "the bank"},
		},
	},
}

// StoreMatch is the result of classifying an address.
type StoreMatch struct {
	Category userdata.Category
	Name     string
	Emoji    string
}

// MatchStore classifies address by lowercase substring against the chain
// tables.
func MatchStore(address string) (StoreMatch, bool) {
	lower := strings.ToLower(address)
	for _, sc := range storeCategories {
		for _, c := range sc.chains {
			if strings.Contains(lower, c.match) {
				return StoreMatch{Category: sc.category, Name: c.name, Emoji: sc.emoji}, true
			}
		}
	}
	return StoreMatch{}, false
}

// CategoryEmoji returns the emoji shown for category.
func CategoryEmoji(category userdata.Category) string {
	for _, sc := range storeCategories {
		if sc.category == category {
			return sc.emoji
		}
	}
	return "📍"
}

// regionCategories maps a region type to the task categories relevant on
// arrival. Home has no arrival mapping.
var regionCategories = map[LocationType][]userdata.Category{
	LocationWork: {userdata.CategoryWork},
	LocationGym:  {userdata.CategoryFitness},
}

var regionEmoji = map[LocationType]string{
	LocationHome: "🏠",
	LocationWork: "💼",
	LocationGym:  "💪",
}

// FormatPreview lists up to limit task titles followed by "+N more".
func FormatPreview(tasks []userdata.Task, limit int) string {
	if len(tasks) == 0 {
		return ""
	}
	if limit <= 0 {
		limit = 3
	}
	n := min(limit, len(tasks))
	titles := make([]string, 0, n)
	for _, t := range tasks[:n] {
		titles = append(titles, t.Title)
	}
	preview := strings.Join(titles, ", ")
	if rest := len(tasks) - n; rest > 0 {
		preview += " +" + strconv.Itoa(rest) + " more"
	}
	return preview
}
