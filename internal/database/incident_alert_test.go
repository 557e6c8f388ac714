package database

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := AutoMigrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestIncidentAlert_TableName(t *testing.T) {
	ia := IncidentAlert{}
	if ia.TableName() != "incident_alerts" {
		t.Errorf("expected table name 'incident_alerts', got '%s'", ia.TableName())
	}
}

func TestIncidentAlert_DuplicateLinkIgnored(t *testing.T) {
	db := setupTestDB(t)

	link := IncidentAlert{AlertID: "alert-1", IncidentID: "inc-1", AttachedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	dup := IncidentAlert{AlertID: "alert-1", IncidentID: "inc-1", AttachedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&dup).Error; err != nil {
		t.Fatalf("duplicate insert should be ignored, got: %v", err)
	}

	var count int64
	db.Model(&IncidentAlert{}).Where("incident_id = ?", "inc-1").Count(&count)
	if count != 1 {
		t.Errorf("expected 1 link, got %d", count)
	}
}

func TestIncidentAlert_ManyAlertsOneIncident(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := db.Create(&IncidentAlert{AlertID: id, IncidentID: "inc-1", AttachedAt: time.Now()}).Error; err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	var count int64
	db.Model(&IncidentAlert{}).Where("incident_id = ?", "inc-1").Count(&count)
	if count != 3 {
		t.Errorf("expected 3 links, got %d", count)
	}
}

func TestAlert_LabelsPersistThroughSqlite(t *testing.T) {
	db := setupTestDB(t)

	alert := Alert{
		ID:         "alert-1",
		Source:     "api-server-03",
		Title:      "HighMemoryUsage",
		Severity:   "warning",
		Labels:     JSONB{"alertname": "HighMemoryUsage", "team": "platform"},
		ReceivedAt: time.Now(),
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var loaded Alert
	if err := db.First(&loaded, "id = ?", "alert-1").Error; err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Labels["team"] != "platform" {
		t.Errorf("expected label team=platform, got %v", loaded.Labels["team"])
	}
}
