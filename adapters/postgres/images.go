package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bazaar/models"
)

// RecordImage 記錄使用者上傳的圖片，方便之後追蹤或清理未使用的檔案
func (r *Repository) RecordImage(ctx context.Context, uploaderID, url, contentType string, size int64) (models.Image, error) {
	const op = "RecordImage"
	image := models.Image{
		ID:          uuid.NewString(),
		UploaderID:  uploaderID,
		URL:         url,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&image).Error; err != nil {
		return models.Image{}, fmt.Errorf("[%s] Fail to record image, err=%w", op, err)
	}
	return image, nil
}

// ImagesByUploader 依上傳時間由新到舊列出使用者上傳的圖片
func (r *Repository) ImagesByUploader(ctx context.Context, uploaderID string) ([]models.Image, error) {
	const op = "ImagesByUploader"
	var images []models.Image
	err := r.db.WithContext(ctx).
		Where("uploader_id = ?", uploaderID).
		Order("created_at DESC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list images, err=%w", op, err)
	}
	return images, nil
}

// CountImagesSince 計算使用者在 since 之後上傳的圖片數量，用於上傳頻率限制
func (r *Repository) CountImagesSince(ctx context.Context, uploaderID string, since time.Time) (int64, error) {
	const op = "CountImagesSince"
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Image{}).
		Where("uploader_id = ? AND created_at > ?", uploaderID, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to count images, err=%w", op, err)
	}
	return count, nil
}
