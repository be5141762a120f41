package models

import (
	"time"
)

// Image 代表使用者上傳到物件儲存的商品圖片
// 包含基本的圖片資訊，如圖片 URL 以及上傳者的使用者 ID
type Image struct {
	ID          string    `gorm:"type:uuid;primaryKey;<-:create"`
	UploaderID  string    `gorm:"type:varchar(64);not null;index;<-:create"`
	URL         string    `gorm:"type:text;not null;<-:create"`
	ContentType string    `gorm:"type:varchar(64);not null;<-:create"`
	Size        int64     `gorm:"not null;<-:create"`
	CreatedAt   time.Time `gorm:"<-:create"`
}

// All 回傳所有需要建立的資料表，供自動遷移與 atlas 使用
func All() []any {
	return []any{&Product{}, &Bid{}, &Image{}}
}
