package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bazaar/adapters/s3"
	"bazaar/models"
)

// IImageStore 記錄上傳的圖片，並提供上傳頻率限制所需的計數
type IImageStore interface {
	RecordImage(ctx context.Context, uploaderID, url, contentType string, size int64) (models.Image, error)
	CountImagesSince(ctx context.Context, uploaderID string, since time.Time) (int64, error)
}

// Upload a product image
// (POST /images)
func (impl *ServerImpl) PostImage(c *gin.Context) {
	const op = "PostImage"
	ctx := c.Request.Context()
	actor := actorFrom(c)

	// 檢查是否達到上傳限制
	if impl.options.uploadLimit > 0 {
		uploadedCount, err := impl.images.CountImagesSince(ctx, actor.ID, time.Now().Add(-1*time.Hour))
		if err != nil {
			impl.writeError(c, op, fmt.Errorf("[%s] Fail to count uploaded images, err=%w", op, err))
			return
		}
		if uploadedCount >= impl.options.uploadLimit {
			abortWithError(c, http.StatusTooManyRequests, "TooManyRequests",
				fmt.Sprintf("upload limit of %d images per hour reached", impl.options.uploadLimit))
			return
		}
	}

	// 限制圖片
	// 	1. 不超過設定的大小
	// 	2. MIME類型為不包含腳本的圖片檔案
	image, err := s3.ReadImage(c.Request.Body, impl.options.maxImageSize)
	if err != nil {
		impl.writeError(c, op, err)
		return
	}

	// 透過S3 API儲存圖片
	url, err := impl.uploader.Upload(ctx, uuid.NewString()+"."+image.Extension, image.ContentType, image.Data)
	if err != nil {
		impl.writeError(c, op, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}

	// 在DB紀錄圖片的上傳紀錄
	size := int64(len(image.Data))
	if _, err := impl.images.RecordImage(ctx, actor.ID, url, image.ContentType, size); err != nil {
		impl.writeError(c, op, fmt.Errorf("[%s] Fail to record image, err=%w", op, err))
		return
	}
	impl.logger.Info("Image uploaded",
		slog.String("uploader", actor.ID),
		slog.String("url", url),
		slog.String("size", s3.FormatBytes(size)))

	c.Header("Location", url)
	c.JSON(http.StatusCreated, imageResponse{
		URL:         url,
		ContentType: image.ContentType,
		Size:        size,
		SizeText:    s3.FormatBytes(size),
	})
}
