package model

import "time"

type Garment struct {
	ID                string    `db:"id"`
	UserID            string    `db:"user_id"`
	FileName          string    `db:"file_name"`
	OriginalImageURL  string    `db:"original_image_url"`
	ProcessedImageURL string    `db:"processed_image_url"`
	Category          string    `db:"category"`
	Color             string    `db:"color"`
	Style             string    `db:"style"`
	Season            string    `db:"season"`
	Material          string    `db:"material"`
	Occasion          string    `db:"occasion"`
	Confidence        float64   `db:"confidence"`
	ProcessingStatus  string    `db:"processing_status"`
	ErrorMessage      string    `db:"error_message"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}
