package database

import "time"

// IncidentAlert records which alerts contributed to an incident. Rows are append-only.
type IncidentAlert struct {
	AlertID    string    `gorm:"primaryKey;type:varchar(36)" json:"alert_id"`
	IncidentID string    `gorm:"primaryKey;type:varchar(36);index" json:"incident_id"`
	AttachedAt time.Time `gorm:"not null" json:"attached_at"`
}

func (IncidentAlert) TableName() string {
	return "incident_alerts"
}
