package model

import "time"

type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeDOCX  FileType = "docx"
	FileTypeZIP   FileType = "zip"
	FileTypeOther FileType = "other"
)

type OrderFile struct {
	ID               int64     `json:"id"`
	OrderID          int64     `json:"order"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	FileType         FileType  `json:"file_type"`
	Size             int64     `json:"size"`
	VisibleToClients bool      `json:"visible_to_clients"`
	StorageKey       string    `json:"-"`
	URL              string    `json:"uploaded_file_url"`
	UploadedBy       *int64    `json:"uploaded_by"`
	CreatedAt        time.Time `json:"created_at"`
}
