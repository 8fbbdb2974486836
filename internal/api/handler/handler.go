package handler

import (
	"log/slog"

	"github.com/wardroberry/wardroberry/internal/api/storage"
	"github.com/wardroberry/wardroberry/internal/blobstore"
	"github.com/wardroberry/wardroberry/internal/queue"
	"github.com/wardroberry/wardroberry/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	DBClient  *postgresql.Client
	Queue     *queue.Queue
	BlobStore *blobstore.Client
}

// GarmentHandler handles garment-related HTTP requests
type GarmentHandler struct {
	logger    *slog.Logger
	storage   *storage.Storage
	queue     *queue.Queue
	blobStore *blobstore.Client
}

// NewGarmentHandler creates a new GarmentHandler instance
func NewGarmentHandler(deps *Dependencies) *GarmentHandler {
	return &GarmentHandler{
		logger:    deps.Logger,
		storage:   storage.NewStorage(deps.DBClient),
		queue:     deps.Queue,
		blobStore: deps.BlobStore,
	}
}
