package dto

type UploadGarmentResponse struct {
	GarmentID        string `json:"garment_id"`
	ProcessingStatus string `json:"processing_status"`
	OriginalImageURL string `json:"original_image_url"`
	Message          string `json:"message"`
}

type ListGarmentsRequest struct {
	UserID   string `form:"user_id" binding:"required"`
	Status   string `form:"status"`
	Category string `form:"category"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListGarmentsResponse struct {
	Garments   []GarmentDTO `json:"garments"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type GarmentDTO struct {
	GarmentID         string  `json:"garment_id"`
	UserID            string  `json:"user_id"`
	FileName          string  `json:"file_name"`
	OriginalImageURL  string  `json:"original_image_url"`
	ProcessedImageURL string  `json:"processed_image_url,omitempty"`
	Category          string  `json:"category,omitempty"`
	Color             string  `json:"color,omitempty"`
	Style             string  `json:"style,omitempty"`
	Season            string  `json:"season,omitempty"`
	Material          string  `json:"material,omitempty"`
	Occasion          string  `json:"occasion,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
	ProcessingStatus  string  `json:"processing_status"`
	ErrorMessage      string  `json:"error_message,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}
