package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"bazaar/models"
)

// Images 在記憶體中記錄上傳的圖片
type Images struct {
	mu     sync.Mutex
	images []models.Image
	now    func() time.Time
}

func NewImages() *Images {
	return &Images{now: time.Now}
}

func (s *Images) RecordImage(_ context.Context, uploaderID, url, contentType string, size int64) (models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	image := models.Image{
		ID:          uuid.NewString(),
		UploaderID:  uploaderID,
		URL:         url,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   s.now().UTC(),
	}
	s.images = append(s.images, image)
	return image, nil
}

func (s *Images) CountImagesSince(_ context.Context, uploaderID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(lo.CountBy(s.images, func(image models.Image) bool {
		return image.UploaderID == uploaderID && image.CreatedAt.After(since)
	})), nil
}
