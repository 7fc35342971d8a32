package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Sync queue statuses. A row moves pending -> success or pending -> error
// exactly once per upload attempt and never reverts.
const (
	QueuePending = "pending"
	QueueSuccess = "success"
	QueueError   = "error"
)

// Action types recorded in the sync queue. The companion only ever creates
// entities locally; edits and deletes happen on the server side.
const (
	ActionCreateClient      = "create_client"
	ActionCreatePatient     = "create_patient"
	ActionCreateAppointment = "create_appointment"
	ActionCreateInvoice     = "create_invoice"
)

// Invoice payment statuses.
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

// MergeOutcome is the result of an insert-or-skip import of a server row.
type MergeOutcome int

const (
	MergeInserted MergeOutcome = iota
	MergeSkipped
)

func (o MergeOutcome) String() string {
	if o == MergeInserted {
		return "inserted"
	}
	return "skipped"
}

// Client is a pet owner. ServerID is 0 until the server acknowledges the row.
type Client struct {
	ID        int64     `json:"id"`
	ServerID  int64     `json:"server_id,omitempty"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Patient struct {
	ID        int64     `json:"id"`
	ServerID  int64     `json:"server_id,omitempty"`
	Name      string    `json:"name"`
	Species   string    `json:"species"`
	Breed     string    `json:"breed,omitempty"`
	BirthDate string    `json:"birth_date,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	ClientID  int64     `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NomenclatureItem is a price-list entry. Its ID is server-origin; the whole
// table is replaced on every download and never edited locally.
type NomenclatureItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"` // "service" or "product"
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

type Appointment struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	PatientID  int64     `json:"patient_id"`
	Date       string    `json:"appointment_date"`
	Time       string    `json:"appointment_time"`
	DoctorName string    `json:"doctor_name,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type InvoiceItem struct {
	NomenclatureID int64   `json:"nomenclature_id"`
	Name           string  `json:"name"`
	Quantity       int     `json:"quantity"`
	Price          float64 `json:"price"`
	Total          float64 `json:"total"`
}

type Invoice struct {
	ID            int64         `json:"id"`
	ClientID      int64         `json:"client_id"`
	PatientID     int64         `json:"patient_id,omitempty"` // 0 when not tied to a patient
	Items         []InvoiceItem `json:"items"`
	TotalAmount   float64       `json:"total_amount"`
	PaymentStatus string        `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// SyncQueueItem is one durable outbox row. Payload is the JSON snapshot of
// the entity taken at enqueue time, including its local id for correlation.
type SyncQueueItem struct {
	ID           int64     `json:"id"`
	ActionType   string    `json:"action_type"`
	Payload      string    `json:"payload"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
