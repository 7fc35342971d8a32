package syncer

import (
	"encoding/json"
	"fmt"

	"github.com/ssavin/vetsync/internal/storage"
)

// Queue payload schemas. Each payload is the snapshot of an entity at
// enqueue time; local_id lets the server acknowledgment be correlated back
// to the originating row. Changing a schema requires bumping its version.

const payloadVersion = 1

type ClientPayload struct {
	Version  int    `json:"v"`
	LocalID  int64  `json:"local_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
}

type PatientPayload struct {
	Version   int    `json:"v"`
	LocalID   int64  `json:"local_id"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Breed     string `json:"breed,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	Gender    string `json:"gender,omitempty"`
	ClientID  int64  `json:"client_id"`
}

type AppointmentPayload struct {
	Version    int    `json:"v"`
	LocalID    int64  `json:"local_id"`
	ClientID   int64  `json:"client_id"`
	PatientID  int64  `json:"patient_id"`
	Date       string `json:"appointment_date"`
	Time       string `json:"appointment_time"`
	DoctorName string `json:"doctor_name,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type InvoicePayload struct {
	Version       int                   `json:"v"`
	LocalID       int64                 `json:"local_id"`
	ClientID      int64                 `json:"client_id"`
	PatientID     int64                 `json:"patient_id,omitempty"`
	Items         []storage.InvoiceItem `json:"items"`
	TotalAmount   float64               `json:"total_amount"`
	PaymentStatus string                `json:"payment_status"`
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}

// EncodeClientPayload snapshots a client row for the outbox.
func EncodeClientPayload(c storage.Client) (string, error) {
	return encode(ClientPayload{
		Version:  payloadVersion,
		LocalID:  c.ID,
		FullName: c.FullName,
		Phone:    c.Phone,
		Email:    c.Email,
		Address:  c.Address,
	})
}

// EncodePatientPayload snapshots a patient row for the outbox.
func EncodePatientPayload(p storage.Patient) (string, error) {
	return encode(PatientPayload{
		Version:   payloadVersion,
		LocalID:   p.ID,
		Name:      p.Name,
		Species:   p.Species,
		Breed:     p.Breed,
		BirthDate: p.BirthDate,
		Gender:    p.Gender,
		ClientID:  p.ClientID,
	})
}

// EncodeAppointmentPayload snapshots an appointment row for the outbox.
func EncodeAppointmentPayload(a storage.Appointment) (string, error) {
	return encode(AppointmentPayload{
		Version:    payloadVersion,
		LocalID:    a.ID,
		ClientID:   a.ClientID,
		PatientID:  a.PatientID,
		Date:       a.Date,
		Time:       a.Time,
		DoctorName: a.DoctorName,
		Notes:      a.Notes,
	})
}

// EncodeInvoicePayload snapshots an invoice row for the outbox.
func EncodeInvoicePayload(inv storage.Invoice) (string, error) {
	return encode(InvoicePayload{
		Version:       payloadVersion,
		LocalID:       inv.ID,
		ClientID:      inv.ClientID,
		PatientID:     inv.PatientID,
		Items:         inv.Items,
		TotalAmount:   inv.TotalAmount,
		PaymentStatus: inv.PaymentStatus,
	})
}

// DecodePayloadLocalID extracts the originating local row id from any queue
// payload.
func DecodePayloadLocalID(payload string) (int64, error) {
	var envelope struct {
		LocalID int64 `json:"local_id"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return 0, fmt.Errorf("decoding payload: %w", err)
	}
	if envelope.LocalID == 0 {
		return 0, fmt.Errorf("payload has no local_id")
	}
	return envelope.LocalID, nil
}
