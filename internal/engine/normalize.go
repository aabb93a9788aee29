package engine

// DefaultMultiplier applies to unknown or missing unit multiplier labels.
// The fallback is silent: an unmapped label leaves the value unchanged.
const DefaultMultiplier = 1.0

var multipliers = map[string]float64{
	"Millions":  1e6,
	"Thousands": 1e3,
	"Units":     1,
	"Billions":  1e9,
}

// Multiplier maps a unit multiplier label to its scale factor.
// Labels are matched exactly, as exported by the OECD data explorer.
func Multiplier(label string) float64 {
	if f, ok := multipliers[label]; ok {
		return f
	}
	return DefaultMultiplier
}

// Normalize expresses value in absolute units.
func Normalize(value float64, label string) float64 {
	return value * Multiplier(label)
}
