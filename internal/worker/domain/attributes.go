package domain

// Attributes holds the classification result for a garment image.
type Attributes struct {
	Category   string  `json:"category"`
	Color      string  `json:"color"`
	Style      string  `json:"style"`
	Season     string  `json:"season"`
	Material   string  `json:"material"`
	Occasion   string  `json:"occasion"`
	Confidence float64 `json:"confidence"`
}
