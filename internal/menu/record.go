package menu

import "github.com/zombor/menu-scan/internal/scanning"

// Record is one persisted menu line
type Record struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Category string `json:"category" gorm:"type:text;not null"`
	Item     string `json:"item" gorm:"type:text;not null"`
	Price    string `json:"price" gorm:"type:text;not null"` // amount as printed, or "MRP"
}

// TableName pins the gorm table name to the one the other backends use
func (Record) TableName() string {
	return tableName
}

// Image is one uploaded menu image
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageResult describes what one image contributed to a batch
type ImageResult struct {
	Filename string `json:"filename"`
	Records  int    `json:"records"`
	Dropped  int    `json:"dropped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Batch is everything extracted from one upload request. It is never
// stored as a unit, only its records are.
type Batch struct {
	ID      string        `json:"id"`
	Records []Record      `json:"records"`
	Images  []ImageResult `json:"images"`
}

func recordsFromItems(items []scanning.MenuItem) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, Record{
			Category: item.Category,
			Item:     item.Item,
			Price:    item.Price,
		})
	}
	return records
}
