package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection. The inventory tables
// are created empty when absent so a fresh deployment serves an empty listing
// instead of erroring.
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS item (
		mac_address TEXT,
		brand TEXT,
		model TEXT,
		serial_number TEXT,
		epc TEXT,
		image TEXT,
		inventory_code TEXT,
		category TEXT,
		updated_at TIMESTAMP,
		antenna INTEGER,
		group_id INTEGER,
		designation TEXT
	);
	CREATE TABLE IF NOT EXISTS groupname (
		group_id INTEGER PRIMARY KEY,
		group_name TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ListItems returns all tracked items joined with their group names,
// excluding the retired group (id 9), in the timeline display order.
func (s *SQLiteDB) ListItems() ([]Item, error) {
	query := `
	SELECT
		item.mac_address, item.brand, item.model, item.serial_number,
		item.epc, item.image, item.inventory_code, item.category,
		item.updated_at, item.antenna, item.group_id, item.designation,
		CAST(strftime('%s','now') - strftime('%s', item.updated_at) AS INTEGER) AS sec,
		strftime('%d/%m/%Y', item.updated_at, 'localtime') || ' à ' ||
			strftime('%Hh%Mmin%Ss', item.updated_at, 'localtime') AS heure,
		CAST(strftime('%s', item.updated_at) AS INTEGER) AS updated_atposix,
		groupname.group_name
	FROM item
	JOIN groupname ON item.group_id = groupname.group_id
	WHERE item.group_id <> 9
	ORDER BY item.group_id, item.category, item.designation, item.model, item.antenna, item.updated_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.MacAddress, &it.Brand, &it.Model, &it.SerialNumber,
			&it.EPC, &it.Image, &it.InventoryCode, &it.Category,
			&it.UpdatedAt, &it.Antenna, &it.GroupID, &it.Designation,
			&it.Sec, &it.Heure, &it.UpdatedAtPosix, &it.Group,
		); err != nil {
			log.Printf("database: scanning item row: %v", err)
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

// GetDB returns the underlying sql.DB instance
func (s *SQLiteDB) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
