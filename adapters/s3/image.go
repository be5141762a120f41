package s3

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

// secureImageTypes 是允許上傳的圖片類型及其副檔名，不包含可以夾帶腳本的 SVG
var secureImageTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/webp": "webp",
}

// ImageExtension 回傳允許的 MIME 類型對應的副檔名
func ImageExtension(mimeType string) (string, bool) {
	ext, ok := secureImageTypes[mimeType]
	return ext, ok
}

// Image 是通過檢查、準備上傳的圖片
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

// ReadImage 讀取最多 maxSize 位元組並以內容判斷圖片類型，
// 超過大小回傳 *ReachLimitError，不允許的類型回傳 ErrUnsupportedImage。
func ReadImage(r io.Reader, maxSize int64) (Image, error) {
	data, err := io.ReadAll(NewMaxSizeReader(r, maxSize))
	if err != nil {
		return Image{}, err
	}
	contentType := http.DetectContentType(data)
	ext, ok := ImageExtension(contentType)
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}
	return Image{Data: data, ContentType: contentType, Extension: ext}, nil
}
