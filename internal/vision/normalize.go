package vision

import "github.com/wardroberry/wardroberry/internal/worker/domain"

// Closed vocabularies the classifier prompt constrains the model to. Values
// outside a vocabulary are normalized to its default rather than rejected,
// since the model occasionally improvises despite the prompt.
var (
	allowedCategories = []string{
		"top", "pants", "dress", "skirt", "jacket", "coat", "sweater",
		"t-shirt", "shirt", "blouse", "shorts", "jeans", "shoes", "boots",
		"sneakers", "sandals", "accessory", "belt", "hat", "scarf",
	}

	allowedColors = []string{
		"black", "white", "gray", "brown", "beige", "red", "pink", "orange",
		"yellow", "green", "blue", "purple", "multicolor", "patterned",
	}

	allowedStyles = []string{
		"casual", "elegant", "sporty", "business", "vintage", "modern",
		"bohemian", "minimalist", "extravagant",
	}

	allowedSeasons = []string{
		"spring", "summer", "autumn", "winter", "all-season", "transitional",
	}

	allowedOccasions = []string{
		"everyday", "work", "sport", "leisure", "going-out", "formal",
		"beach", "home",
	}
)

const (
	defaultCategory = "top"
	defaultColor    = "unknown"
	defaultStyle    = "casual"
	defaultSeason   = "all-season"
	defaultMaterial = "unknown"
	defaultOccasion = "everyday"
)

// normalizeAttributes validates the model's answer against the vocabularies
// and clamps confidence into [0, 1].
func normalizeAttributes(attrs *domain.Attributes) *domain.Attributes {
	out := *attrs

	if !contains(allowedCategories, out.Category) {
		out.Category = defaultCategory
	}
	if !contains(allowedColors, out.Color) {
		out.Color = defaultColor
	}
	if !contains(allowedStyles, out.Style) {
		out.Style = defaultStyle
	}
	if !contains(allowedSeasons, out.Season) {
		out.Season = defaultSeason
	}
	if out.Material == "" {
		out.Material = defaultMaterial
	}
	if !contains(allowedOccasions, out.Occasion) {
		out.Occasion = defaultOccasion
	}

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	return &out
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
