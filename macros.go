package mealmemory

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Aggregate sums the macro channels of items. Non-finite values contribute 0.
// A meal's stored Macros must always be the result of this function over its Items.
func Aggregate(items []FoodItem) Macros {
	var total Macros
	for _, it := range items {
		total.Calories += finite(it.Calories)
		total.Protein += finite(it.Protein)
		total.Carbs += finite(it.Carbs)
		total.Fat += finite(it.Fat)
	}
	return total
}

// Add returns the channel-wise sum of m and o.
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Protein:  m.Protein + o.Protein,
		Carbs:    m.Carbs + o.Carbs,
		Fat:      m.Fat + o.Fat,
	}
}

// Sub returns the channel-wise difference m - o.
func (m Macros) Sub(o Macros) Macros {
	return Macros{
		Calories: m.Calories - o.Calories,
		Protein:  m.Protein - o.Protein,
		Carbs:    m.Carbs - o.Carbs,
		Fat:      m.Fat - o.Fat,
	}
}

// Rounded returns display values: whole calories, grams to one decimal.
func (m Macros) Rounded() Macros {
	return Macros{
		Calories: math.Round(m.Calories),
		Protein:  Round1(m.Protein),
		Carbs:    Round1(m.Carbs),
		Fat:      Round1(m.Fat),
	}
}

// WithItems returns a copy of the meal holding items, with Macros re-derived from them.
func (m Meal) WithItems(items []FoodItem) Meal {
	m.Items = append([]FoodItem(nil), items...)
	m.Macros = Aggregate(m.Items)
	return m
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ParseNumber coerces an arbitrary decoded value into a finite float64.
// Anything that is not a number, or a string holding one, yields 0.
func ParseNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", "."))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	return finite(f)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
