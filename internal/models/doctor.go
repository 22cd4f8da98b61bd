package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// WeekdayKeys lists the seven weekday codes in template order.
var WeekdayKeys = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// IsWeekdayKey reports whether key is one of the seven weekday codes.
func IsWeekdayKey(key string) bool {
	for _, k := range WeekdayKeys {
		if k == key {
			return true
		}
	}
	return false
}

// TimeWindow is a minutes-aligned availability window within one day.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyAvailability maps weekday codes to ordered disjoint windows.
// A missing key means the doctor is unavailable that day.
type WeeklyAvailability map[string][]TimeWindow

// WeeklySlotTemplate maps weekday codes to ordered slot start times.
// It is derived from WeeklyAvailability and the slot duration, and is a
// cache, never a source of truth.
type WeeklySlotTemplate map[string][]string

// Doctor represents a practitioner record. The weekly slot template is
// stored denormalized on the row and regenerated on every availability or
// slot duration update.
type Doctor struct {
	ID           string         `db:"id" json:"id"`
	Email        string         `db:"email" json:"email"`
	FullName     string         `db:"full_name" json:"full_name"`
	Phone        *string        `db:"phone" json:"phone,omitempty"`
	Specialty    *string        `db:"specialty" json:"specialty,omitempty"`
	SlotDuration int            `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	Availability types.JSONText `db:"weekly_availability" json:"weekly_availability"`
	SlotTemplate types.JSONText `db:"weekly_slot_template" json:"weekly_slot_template"`
	Active       bool           `db:"active" json:"active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// WeeklyAvailability decodes the stored availability JSON.
func (d *Doctor) WeeklyAvailability() (WeeklyAvailability, error) {
	if len(d.Availability) == 0 {
		return WeeklyAvailability{}, nil
	}
	var availability WeeklyAvailability
	if err := json.Unmarshal(d.Availability, &availability); err != nil {
		return nil, err
	}
	return availability, nil
}

// WeeklySlotTemplate decodes the cached template JSON.
func (d *Doctor) WeeklySlotTemplate() (WeeklySlotTemplate, error) {
	if len(d.SlotTemplate) == 0 {
		return WeeklySlotTemplate{}, nil
	}
	var template WeeklySlotTemplate
	if err := json.Unmarshal(d.SlotTemplate, &template); err != nil {
		return nil, err
	}
	return template, nil
}

// DoctorFilter captures filtering options for listing doctors.
type DoctorFilter struct {
	Search    string
	Specialty string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
