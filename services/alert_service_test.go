package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"matatu-commuter-api/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db handle: %v", err)
	}
	// One in-memory sqlite database per test
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Errorf("close test db: %v", err)
		}
	})

	if err := db.AutoMigrate(&models.User{}, &models.Alert{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func seedDriver(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{
		Firstname: "Test",
		Lastname:  "Driver",
		Username:  username,
		Email:     username + "@matatu.test",
		Password:  "x",
		Specify:   "Driver",
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed driver failed: %v", err)
	}
	return u
}

func seedAlert(t *testing.T, db *gorm.DB, a models.Alert) models.Alert {
	t.Helper()
	if a.SeverityLevel == "" {
		a.SeverityLevel = models.SeverityMedium
	}
	if a.Title == "" {
		a.Title = "seeded alert"
	}
	if a.Description == "" {
		a.Description = "seeded description"
	}
	if a.LocationName == "" {
		a.LocationName = "Somewhere"
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seed alert failed: %v", err)
	}
	return a
}

func TestListFiltersConjunctive(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()

	d1 := seedDriver(t, db, "driver1")
	d2 := seedDriver(t, db, "driver2")

	jam := seedAlert(t, db, models.Alert{
		DriverID: d1.ID, AlertType: models.AlertTypeTrafficJam,
		SeverityLevel: models.SeverityHigh, LocationName: "Uhuru Highway",
	})
	seedAlert(t, db, models.Alert{
		DriverID: d1.ID, AlertType: models.AlertTypeAccident,
		SeverityLevel: models.SeverityCritical, LocationName: "Globe Roundabout",
	})
	seedAlert(t, db, models.Alert{
		DriverID: d2.ID, AlertType: models.AlertTypeTrafficJam,
		SeverityLevel: models.SeverityLow, LocationName: "Thika Road",
	})

	t.Run("type filter", func(t *testing.T) {
		alerts, pag, err := svc.List(ctx, AlertFilter{AlertType: "traffic_jam", ActiveOnly: true}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if pag.TotalCount != 2 {
			t.Errorf("TotalCount = %d, want 2", pag.TotalCount)
		}
		for _, a := range alerts {
			if a.AlertType != models.AlertTypeTrafficJam {
				t.Errorf("alert %d has type %q, want traffic_jam", a.ID, a.AlertType)
			}
		}
	})

	t.Run("type and severity and driver", func(t *testing.T) {
		alerts, _, err := svc.List(ctx, AlertFilter{
			AlertType:     "traffic_jam",
			SeverityLevel: "high",
			DriverID:      d1.ID,
			ActiveOnly:    true,
		}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].ID != jam.ID {
			t.Fatalf("expected only the d1 high traffic_jam alert, got %d rows", len(alerts))
		}
	})

	t.Run("location substring is case-insensitive", func(t *testing.T) {
		alerts, _, err := svc.List(ctx, AlertFilter{Location: "uhuru"}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].LocationName != "Uhuru Highway" {
			t.Fatalf("expected the Uhuru Highway alert, got %v", alerts)
		}
	})

	t.Run("unknown enum value matches nothing without error", func(t *testing.T) {
		alerts, pag, err := svc.List(ctx, AlertFilter{AlertType: "not_a_real_type"}, Page{})
		if err != nil {
			t.Fatalf("List should not error on unknown types: %v", err)
		}
		if len(alerts) != 0 || pag.TotalCount != 0 {
			t.Errorf("expected no matches, got %d rows, total %d", len(alerts), pag.TotalCount)
		}
	})

	t.Run("driver preloaded", func(t *testing.T) {
		alerts, _, err := svc.List(ctx, AlertFilter{DriverID: d2.ID}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].Driver.Username != "driver2" {
			t.Errorf("expected preloaded driver2, got %+v", alerts)
		}
	})
}

func TestListOrderingAndPartition(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 7; i++ {
		a := seedAlert(t, db, models.Alert{
			DriverID:  d.ID,
			AlertType: models.AlertTypeOther,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		ids = append(ids, a.ID)
	}

	t.Run("newest first", func(t *testing.T) {
		alerts, _, err := svc.List(ctx, AlertFilter{}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for i := 1; i < len(alerts); i++ {
			if alerts[i].CreatedAt.After(alerts[i-1].CreatedAt) {
				t.Errorf("alerts out of order at index %d", i)
			}
		}
	})

	t.Run("pages partition the result", func(t *testing.T) {
		seen := map[uint]bool{}
		var concat []uint
		for page := 1; page <= 3; page++ {
			alerts, pag, err := svc.List(ctx, AlertFilter{}, Page{Number: page, Limit: 3})
			if err != nil {
				t.Fatalf("page %d failed: %v", page, err)
			}
			if pag.TotalCount != 7 {
				t.Errorf("page %d TotalCount = %d, want 7", page, pag.TotalCount)
			}
			for _, a := range alerts {
				if seen[a.ID] {
					t.Errorf("alert %d returned twice", a.ID)
				}
				seen[a.ID] = true
				concat = append(concat, a.ID)
			}
		}
		if len(concat) != 7 {
			t.Fatalf("concatenated pages have %d alerts, want 7", len(concat))
		}
		// Newest (last seeded) first
		if concat[0] != ids[6] || concat[6] != ids[0] {
			t.Errorf("concatenated order wrong: %v", concat)
		}
	})

	t.Run("pagination boundaries", func(t *testing.T) {
		_, pag, _ := svc.List(ctx, AlertFilter{}, Page{Number: 1, Limit: 3})
		if pag.HasPrev || !pag.HasNext || pag.TotalPages != 3 {
			t.Errorf("page 1: %+v", pag)
		}
		_, pag, _ = svc.List(ctx, AlertFilter{}, Page{Number: 3, Limit: 3})
		if !pag.HasPrev || pag.HasNext {
			t.Errorf("last page: %+v", pag)
		}
	})

	t.Run("page past the end is empty, not an error", func(t *testing.T) {
		alerts, pag, err := svc.List(ctx, AlertFilter{}, Page{Number: 999, Limit: 10})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(alerts) != 0 {
			t.Errorf("expected empty page, got %d rows", len(alerts))
		}
		if pag.HasNext || !pag.HasPrev || pag.TotalPages != 1 {
			t.Errorf("pagination = %+v", pag)
		}
	})
}

func TestActiveOnlyVisibility(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	expired := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeAccident, ExpiryTime: &past})
	active := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeAccident, ExpiryTime: &future})
	forever := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeAccident})

	t.Run("activeOnly hides expired", func(t *testing.T) {
		alerts, pag, err := svc.List(ctx, AlertFilter{ActiveOnly: true}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if pag.TotalCount != 2 {
			t.Errorf("TotalCount = %d, want 2", pag.TotalCount)
		}
		for _, a := range alerts {
			if a.ID == expired.ID {
				t.Error("expired alert should not be visible with activeOnly")
			}
		}
	})

	t.Run("activeOnly=false shows expired too", func(t *testing.T) {
		alerts, pag, err := svc.List(ctx, AlertFilter{}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if pag.TotalCount != 3 || len(alerts) != 3 {
			t.Errorf("expected all 3 alerts, got %d (total %d)", len(alerts), pag.TotalCount)
		}
	})

	t.Run("alert expires as the clock advances", func(t *testing.T) {
		svc.now = func() time.Time { return now.Add(2 * time.Hour) }
		defer func() { svc.now = func() time.Time { return now } }()

		alerts, _, err := svc.List(ctx, AlertFilter{ActiveOnly: true}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].ID != forever.ID {
			t.Errorf("only the never-expiring alert should remain active, got %d rows", len(alerts))
		}
		_ = active
	})
}

func TestCleanup(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	past1 := now.Add(-time.Hour)
	past2 := now // expiry_time <= now counts as expired
	future := now.Add(time.Hour)
	e1 := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther, ExpiryTime: &past1})
	e2 := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther, ExpiryTime: &past2})
	keep := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther, ExpiryTime: &future})
	seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther})

	deleted, err := svc.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted %d alerts, want 2", len(deleted))
	}
	got := map[uint]bool{deleted[0].ID: true, deleted[1].ID: true}
	if !got[e1.ID] || !got[e2.ID] {
		t.Errorf("wrong alerts deleted: %+v", deleted)
	}

	var remaining int64
	db.Model(&models.Alert{}).Count(&remaining)
	if remaining != 2 {
		t.Errorf("%d alerts remain, want 2", remaining)
	}
	var kept models.Alert
	if err := db.First(&kept, keep.ID).Error; err != nil {
		t.Errorf("future-expiry alert was removed: %v", err)
	}

	// Idempotent: second run removes nothing
	deleted, err = svc.Cleanup(ctx)
	if err != nil {
		t.Fatalf("second Cleanup failed: %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("second cleanup deleted %d alerts, want 0", len(deleted))
	}
}

func TestCreateValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	valid := AlertInput{
		AlertType:    "traffic_jam",
		Title:        "Jam at Nyayo",
		Description:  "Stadium roundabout blocked",
		LocationName: "Nyayo Stadium",
	}

	t.Run("happy path with defaults", func(t *testing.T) {
		alert, err := svc.Create(ctx, d.ID, valid, nil)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if alert.SeverityLevel != models.SeverityMedium {
			t.Errorf("severity = %q, want default medium", alert.SeverityLevel)
		}
		if alert.DriverID != d.ID || alert.Driver.Username != "driver1" {
			t.Errorf("driver not stamped: %+v", alert)
		}
		if alert.CreatedAt.IsZero() {
			t.Error("created_at not set")
		}
	})

	t.Run("unknown alert_type names the valid set", func(t *testing.T) {
		in := valid
		in.AlertType = "not_a_real_type"
		_, err := svc.Create(ctx, d.ID, in, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if !strings.Contains(ve.Msg, "traffic_jam") || !strings.Contains(ve.Msg, "route_diversion") {
			t.Errorf("message should name the valid enumeration, got %q", ve.Msg)
		}
	})

	t.Run("unknown severity rejected", func(t *testing.T) {
		in := valid
		in.SeverityLevel = "catastrophic"
		_, err := svc.Create(ctx, d.ID, in, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("missing required fields rejected", func(t *testing.T) {
		in := valid
		in.Title = "   "
		if _, err := svc.Create(ctx, d.ID, in, nil); err == nil {
			t.Error("expected error for blank title")
		}
	})

	t.Run("past expiry rejected", func(t *testing.T) {
		in := valid
		in.ExpiryTime = time.Now().Add(-time.Hour).Format(time.RFC3339)
		_, err := svc.Create(ctx, d.ID, in, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError for past expiry, got %v", err)
		}
	})

	t.Run("unknown driver rejected", func(t *testing.T) {
		if _, err := svc.Create(ctx, 9999, valid, nil); err == nil {
			t.Error("expected error for unknown driver")
		}
	})
}

func TestUpdateAuthorization(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	owner := seedDriver(t, db, "owner")
	other := seedDriver(t, db, "other")

	alert := seedAlert(t, db, models.Alert{
		DriverID: owner.ID, AlertType: models.AlertTypeAccident, Title: "original title",
	})

	newTitle := "hijacked"
	_, err := svc.Update(ctx, other.ID, alert.ID, AlertUpdate{Title: &newTitle}, nil)
	if !errors.Is(err, ErrNotAlertOwner) {
		t.Fatalf("expected ErrNotAlertOwner, got %v", err)
	}

	var unchanged models.Alert
	db.First(&unchanged, alert.ID)
	if unchanged.Title != "original title" {
		t.Errorf("title changed despite 403: %q", unchanged.Title)
	}

	updated, err := svc.Update(ctx, owner.ID, alert.ID, AlertUpdate{Title: &newTitle}, nil)
	if err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	if updated.Title != "hijacked" {
		t.Errorf("Title = %q, want %q", updated.Title, "hijacked")
	}

	if _, err := svc.Update(ctx, owner.ID, 9999, AlertUpdate{Title: &newTitle}, nil); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestDeleteAuthorization(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	owner := seedDriver(t, db, "owner")
	other := seedDriver(t, db, "other")

	alert := seedAlert(t, db, models.Alert{DriverID: owner.ID, AlertType: models.AlertTypeOther})

	if _, err := svc.Delete(ctx, other.ID, alert.ID); !errors.Is(err, ErrNotAlertOwner) {
		t.Fatalf("expected ErrNotAlertOwner, got %v", err)
	}
	if _, err := svc.Delete(ctx, owner.ID, 9999); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}

	deleted, err := svc.Delete(ctx, owner.ID, alert.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted.ID != alert.ID {
		t.Errorf("deleted.ID = %d, want %d", deleted.ID, alert.ID)
	}
	var count int64
	db.Model(&models.Alert{}).Count(&count)
	if count != 0 {
		t.Errorf("%d alerts remain after delete", count)
	}
}

func TestImageLookup(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	img := &AlertImage{Data: []byte("fake-png-bytes"), Filename: "jam.png", Mimetype: "image/png"}
	withImage, err := svc.Create(ctx, d.ID, AlertInput{
		AlertType: "traffic_jam", Title: "t", Description: "d", LocationName: "l",
	}, img)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	plain := seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther})

	data, mimetype, filename, err := svc.GetImage(ctx, withImage.ID)
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if string(data) != "fake-png-bytes" || mimetype != "image/png" || filename != "jam.png" {
		t.Errorf("got (%q, %q, %q)", data, mimetype, filename)
	}

	if _, _, _, err := svc.GetImage(ctx, plain.ID); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound for imageless alert, got %v", err)
	}
	if _, _, _, err := svc.GetImage(ctx, 9999); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound for unknown id, got %v", err)
	}

	t.Run("list omits the payload but flags has_image", func(t *testing.T) {
		alerts, _, err := svc.List(ctx, AlertFilter{}, Page{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, a := range alerts {
			if len(a.ImageData) != 0 {
				t.Errorf("alert %d carries image bytes in a list response", a.ID)
			}
			if a.ID == withImage.ID && !a.HasImage {
				t.Error("has_image should be true for the alert with an image")
			}
			if a.ID == plain.ID && a.HasImage {
				t.Error("has_image should be false for the plain alert")
			}
		}
	})
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	past := now.Add(-time.Minute)
	seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeTrafficJam, CreatedAt: now.Add(-time.Hour)})
	seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeTrafficJam, CreatedAt: now.Add(-2 * time.Hour), ExpiryTime: &past})
	seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeAccident, CreatedAt: now.Add(-10 * 24 * time.Hour)})

	stats, err := svc.Stats(ctx, "7d")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalAlerts != 2 {
		t.Errorf("TotalAlerts = %d, want 2 (the 10-day-old alert is outside the window)", stats.TotalAlerts)
	}
	if stats.ActiveAlerts != 1 {
		t.Errorf("ActiveAlerts = %d, want 1", stats.ActiveAlerts)
	}
	if len(stats.ByType) != 1 || stats.ByType[0].Category != "traffic_jam" || stats.ByType[0].Count != 2 {
		t.Errorf("ByType = %+v", stats.ByType)
	}

	stats, err = svc.Stats(ctx, "bogus")
	if err != nil {
		t.Fatalf("Stats with unknown period failed: %v", err)
	}
	if stats.Period != "7d" {
		t.Errorf("unknown period should fall back to 7d, got %q", stats.Period)
	}
}

func TestListByLocation(t *testing.T) {
	db := newTestDB(t)
	svc := NewAlertService(db)
	ctx := context.Background()
	d := seedDriver(t, db, "driver1")

	seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther, LocationName: "Moi Avenue"})
	seedAlert(t, db, models.Alert{DriverID: d.ID, AlertType: models.AlertTypeOther, LocationName: "Tom Mboya Street"})

	alerts, err := svc.ListByLocation(ctx, "moi", true)
	if err != nil {
		t.Fatalf("ListByLocation failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].LocationName != "Moi Avenue" {
		t.Errorf("got %+v", alerts)
	}
}
