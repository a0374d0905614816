package models

import "time"

// Room is immutable reference data owned by the catalog file.
type Room struct {
	ID        int64    `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Capacity  int      `yaml:"capacity" json:"capacity"`
	Equipment []string `yaml:"equipment" json:"equipment,omitempty"`
	Location  string   `yaml:"location" json:"location"`
	Available bool     `yaml:"available" json:"available"`
}

// EventType bounds the allowed duration of a reservation.
type EventType struct {
	ID          int64  `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	MinMinutes  int    `yaml:"min_minutes" json:"min_minutes"`
	MaxMinutes  int    `yaml:"max_minutes" json:"max_minutes"`
}

func (e EventType) MinDuration() time.Duration {
	return time.Duration(e.MinMinutes) * time.Minute
}

func (e EventType) MaxDuration() time.Duration {
	return time.Duration(e.MaxMinutes) * time.Minute
}

// AllowsDuration checks the [min, max] bound; a zero max means unbounded.
func (e EventType) AllowsDuration(d time.Duration) bool {
	if d < e.MinDuration() {
		return false
	}
	if e.MaxMinutes > 0 && d > e.MaxDuration() {
		return false
	}
	return true
}
