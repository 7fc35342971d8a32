package remote

import "encoding/json"

// Wire types for the sync protocol. Field names follow the server's
// snake_case JSON contract.

// ClientRecord is a pet owner as the server represents it.
type ClientRecord struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
}

// PatientRecord is a patient as the server represents it. ClientID refers to
// the server-side client id.
type PatientRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Breed     string `json:"breed,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	Gender    string `json:"gender,omitempty"`
	ClientID  int64  `json:"client_id"`
}

// NomenclatureRecord is one price-list entry.
type NomenclatureRecord struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

// InitialData is the branch-scoped reference snapshot returned by
// GET /sync/initial-data.
type InitialData struct {
	Clients      []ClientRecord       `json:"clients"`
	Patients     []PatientRecord      `json:"patients"`
	Nomenclature []NomenclatureRecord `json:"nomenclature"`
}

// UploadAction is one queued mutation submitted to the server. Payload is
// passed through opaquely; the server decodes it by action type.
type UploadAction struct {
	QueueID    int64           `json:"queue_id"`
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload"`
}

// UploadResult is the server's verdict on a single submitted action.
type UploadResult struct {
	QueueID  int64  `json:"queue_id"`
	Status   string `json:"status"` // "success" or "error"
	Message  string `json:"message,omitempty"`
	ServerID int64  `json:"server_id,omitempty"`
}

// User describes an authenticated clinic user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Branch is one clinic location the companion can be scoped to.
type Branch struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}
