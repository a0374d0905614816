package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"roomdesk/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the reservation store. Rooms and event types are immutable catalog
// data loaded from config and kept in an in-memory cache; reservations live
// in SQLite and are never physically deleted.
type DB struct {
	*sql.DB

	mu         sync.RWMutex
	rooms      map[int64]models.Room
	eventTypes map[int64]models.EventType

	// slotLocks serializes check-and-insert per (room, date).
	slotLocks sync.Map // map[string]*sync.Mutex

	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")

	return &DB{
		DB:         sqlDB,
		rooms:      make(map[int64]models.Room),
		eventTypes: make(map[int64]models.EventType),
		logger:     logger,
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            user_name TEXT NOT NULL,
            room_id INTEGER NOT NULL,
            room_name TEXT NOT NULL,
            event_type_id INTEGER NOT NULL,
            subject TEXT NOT NULL,
            date TEXT NOT NULL,
            start_minute INTEGER NOT NULL,
            end_minute INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            manager_comment TEXT NOT NULL DEFAULT '',
            approved_by INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS audit_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            reservation_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_room_date ON reservations(room_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_queue_status ON audit_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SetRooms replaces the room catalog cache.
func (db *DB) SetRooms(rooms []models.Room) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rooms = make(map[int64]models.Room, len(rooms))
	for _, room := range rooms {
		db.rooms[room.ID] = room
	}
}

// SetEventTypes replaces the event-type catalog cache.
func (db *DB) SetEventTypes(types []models.EventType) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.eventTypes = make(map[int64]models.EventType, len(types))
	for _, et := range types {
		db.eventTypes[et.ID] = et
	}
}

// GetRoom returns a catalog room by id.
func (db *DB) GetRoom(id int64) (models.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	room, ok := db.rooms[id]
	if !ok {
		return models.Room{}, fmt.Errorf("room %d: %w", id, ErrNotFound)
	}
	return room, nil
}

// ListAvailableRooms returns catalog rooms flagged available, in id order.
func (db *DB) ListAvailableRooms() []models.Room {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rooms := make([]models.Room, 0, len(db.rooms))
	for _, room := range db.rooms {
		if room.Available {
			rooms = append(rooms, room)
		}
	}
	sortRoomsByID(rooms)
	return rooms
}

// GetEventType returns a catalog event type by id.
func (db *DB) GetEventType(id int64) (models.EventType, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	et, ok := db.eventTypes[id]
	if !ok {
		return models.EventType{}, fmt.Errorf("event type %d: %w", id, ErrNotFound)
	}
	return et, nil
}

// ListEventTypes returns all catalog event types, in id order.
func (db *DB) ListEventTypes() []models.EventType {
	db.mu.RLock()
	defer db.mu.RUnlock()
	types := make([]models.EventType, 0, len(db.eventTypes))
	for _, et := range db.eventTypes {
		types = append(types, et)
	}
	sortEventTypesByID(types)
	return types
}

// slotLock returns the mutex guarding one (room, date) pair.
func (db *DB) slotLock(roomID int64, dateKey string) *sync.Mutex {
	key := fmt.Sprintf("%d|%s", roomID, dateKey)
	if v, ok := db.slotLocks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	lock := &sync.Mutex{}
	actual, _ := db.slotLocks.LoadOrStore(key, lock)
	return actual.(*sync.Mutex)
}

func sortRoomsByID(rooms []models.Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
}

func sortEventTypesByID(types []models.EventType) {
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
}
