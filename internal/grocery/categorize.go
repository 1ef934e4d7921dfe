package grocery

import (
	"strings"

	"github.com/dukerupert/fampulse/internal/model"
)

// Categorize returns the generic kind of grocery the item name describes,
// or "" when nothing matches. Matching is case-insensitive: exact names
// first, then keywords contained in the name.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return ""
	}

	if kind, ok := exactKinds[name]; ok {
		return kind
	}

	for _, entry := range keywordKinds {
		if strings.Contains(name, entry.keyword) {
			return entry.kind
		}
	}
	return ""
}

// Suggest picks the family's own category for itemName: the category whose
// name matches one of the aliases of the item's kind.
func Suggest(itemName string, categories []model.GroceryCategory) (model.GroceryCategory, bool) {
	kind := Categorize(itemName)
	if kind == "" {
		return model.GroceryCategory{}, false
	}
	for _, alias := range kindAliases[kind] {
		for _, c := range categories {
			if strings.Contains(strings.ToLower(c.Name), alias) {
				return c, true
			}
		}
	}
	return model.GroceryCategory{}, false
}

const (
	vegetables   = "Vegetables"
	fruits       = "Fruits"
	dairy        = "Dairy"
	staples      = "Staples"
	pulses       = "Pulses"
	spices       = "Spices"
	oils         = "Oils"
	snacks       = "Snacks"
	beverages    = "Beverages"
	bakery       = "Bakery"
	meat         = "Meat"
	household    = "Household"
	personalCare = "Personal Care"
)

// kindAliases lists, most specific first, the category names a family is
// likely to use for each kind.
var kindAliases = map[string][]string{
	vegetables:   {"vegetable", "veggie", "sabzi", "produce"},
	fruits:       {"fruit", "produce"},
	dairy:        {"dairy", "milk"},
	staples:      {"staple", "grain", "atta", "rice", "pantry", "kirana"},
	pulses:       {"pulse", "dal", "lentil", "staple", "pantry", "kirana"},
	spices:       {"spice", "masala", "pantry", "kirana"},
	oils:         {"oil", "ghee", "pantry", "kirana"},
	snacks:       {"snack", "namkeen"},
	beverages:    {"beverage", "drink"},
	bakery:       {"bakery", "bread"},
	meat:         {"meat", "chicken", "fish", "non-veg", "non veg"},
	household:    {"household", "cleaning", "home"},
	personalCare: {"personal", "toiletr", "care"},
}

var exactKinds = map[string]string{
	"onion":       vegetables,
	"onions":      vegetables,
	"potato":      vegetables,
	"potatoes":    vegetables,
	"tomato":      vegetables,
	"tomatoes":    vegetables,
	"garlic":      vegetables,
	"ginger":      vegetables,
	"okra":        vegetables,
	"bhindi":      vegetables,
	"brinjal":     vegetables,
	"cabbage":     vegetables,
	"cauliflower": vegetables,
	"carrot":      vegetables,
	"carrots":     vegetables,
	"spinach":     vegetables,
	"palak":       vegetables,
	"coriander":   vegetables,
	"capsicum":    vegetables,
	"cucumber":    vegetables,
	"peas":        vegetables,
	"lemon":       vegetables,
	"lemons":      vegetables,

	"apple":       fruits,
	"apples":      fruits,
	"banana":      fruits,
	"bananas":     fruits,
	"mango":       fruits,
	"mangoes":     fruits,
	"orange":      fruits,
	"oranges":     fruits,
	"grapes":      fruits,
	"papaya":      fruits,
	"pomegranate": fruits,
	"watermelon":  fruits,
	"guava":       fruits,

	"milk":   dairy,
	"curd":   dairy,
	"dahi":   dairy,
	"paneer": dairy,
	"butter": dairy,
	"cheese": dairy,
	"ghee":   dairy,
	"eggs":   dairy,
	"egg":    dairy,

	"rice":    staples,
	"atta":    staples,
	"maida":   staples,
	"sooji":   staples,
	"rava":    staples,
	"poha":    staples,
	"sugar":   staples,
	"salt":    staples,
	"jaggery": staples,

	"toor dal":   pulses,
	"moong dal":  pulses,
	"chana dal":  pulses,
	"urad dal":   pulses,
	"masoor dal": pulses,
	"rajma":      pulses,
	"chole":      pulses,

	"turmeric": spices,
	"haldi":    spices,
	"jeera":    spices,
	"cumin":    spices,

	"mustard seeds": spices,
	"garam masala":  spices,
	"chilli powder": spices,

	"tea":    beverages,
	"coffee": beverages,
	"juice":  beverages,

	"bread": bakery,
	"pav":   bakery,
	"rusk":  bakery,

	"chicken": meat,
	"mutton":  meat,
	"fish":    meat,
	"prawns":  meat,

	"detergent": household,
	"phenyl":    household,
	"dishwash":  household,

	"soap":       personalCare,
	"shampoo":    personalCare,
	"toothpaste": personalCare,
}

type keywordEntry struct {
	keyword string
	kind    string
}

// keywordKinds is ordered longer, more specific keywords first.
var keywordKinds = []keywordEntry{
	{"coconut oil", oils},
	{"mustard oil", oils},
	{"sunflower oil", oils},
	{"groundnut oil", oils},
	{"peanut butter", snacks},
	{"ice cream", dairy},
	{"green tea", beverages},
	{"dal", pulses},
	{"masala", spices},
	{"powder", spices},
	{"oil", oils},
	{"milk", dairy},
	{"paneer", dairy},
	{"curd", dairy},
	{"rice", staples},
	{"atta", staples},
	{"flour", staples},
	{"biscuit", snacks},
	{"chips", snacks},
	{"namkeen", snacks},
	{"bhujia", snacks},
	{"chocolate", snacks},
	{"juice", beverages},
	{"soda", beverages},
	{"bread", bakery},
	{"cake", bakery},
	{"chicken", meat},
	{"fish", meat},
	{"egg", dairy},
	{"soap", personalCare},
	{"shampoo", personalCare},
	{"tooth", personalCare},
	{"cleaner", household},
	{"detergent", household},
	{"tissue", household},
	{"ketchup", snacks},
	{"tomato", vegetables},
	{"potato", vegetables},
	{"onion", vegetables},
	{"leaves", vegetables},
	{"leaf", vegetables},
}
