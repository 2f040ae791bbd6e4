package database

// Item is one tracked inventory item. The timeline UI uses UpdatedAtPosix to
// anchor an item's last-seen time onto the camera timeline.
type Item struct {
	MacAddress    string `json:"mac_address"`
	Brand         string `json:"brand"`
	Model         string `json:"model"`
	SerialNumber  string `json:"serial_number"`
	EPC           string `json:"epc"`
	Image         string `json:"image"`
	InventoryCode string `json:"inventory_code"`
	Category      string `json:"category"`
	UpdatedAt     string `json:"updated_at"`
	Antenna       int    `json:"antenna"`
	GroupID       int    `json:"group_id"`
	Designation   string `json:"designation"`
	Sec           int64  `json:"sec"`
	Heure         string `json:"heure"`
	UpdatedAtPosix int64 `json:"updated_atposix"`
	Group         string `json:"group"`
}

// Database defines the read-only inventory operations the API layer needs.
// The inventory schema is owned by the deployment; this module only reads it.
type Database interface {
	ListItems() ([]Item, error)
	Close() error
}
