package models

import "time"

// VisitModel tracks API request analytics.
type VisitModel struct {
	Base
	IP        string                 `json:"ip"        gorm:"index"`
	UA        map[string]interface{} `json:"ua"        gorm:"serializer:json;type:longtext"`
	Path      string                 `json:"path"      gorm:"index"`
	Referer   string                 `json:"referer"   gorm:"index"`
	Timestamp time.Time              `json:"timestamp" gorm:"index;index:idx_ts_path,composite:1;index:idx_ts_ip,composite:1"`
}

func (VisitModel) TableName() string { return "analyzes" }
