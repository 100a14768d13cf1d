package entity

import "time"

// UploadedFile 设计文件上传登记（内容本体在磁盘/对象存储，这里只做台账）
type UploadedFile struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	Name       string    `json:"name" gorm:"size:256;not null"`
	Size       int64     `json:"size" gorm:"default:0"`
	Path       string    `json:"path" gorm:"size:512;not null"`
	UploadedBy string    `json:"uploaded_by" gorm:"size:32;not null"`
	CreatedAt  time.Time `json:"created_at"`

	// 关联
	Uploader *User `json:"uploader,omitempty" gorm:"foreignKey:UploadedBy"`
}

func (UploadedFile) TableName() string {
	return "uploaded_files"
}
