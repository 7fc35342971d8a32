package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// --- Clients ---

// CreateClient inserts a locally created client and returns its local id.
// Enqueueing the corresponding sync action is the caller's responsibility.
func (s *Store) CreateClient(c Client) (int64, error) {
	if strings.TrimSpace(c.FullName) == "" {
		return 0, fmt.Errorf("client full name is required")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return 0, fmt.Errorf("client phone is required")
	}

	res, err := s.db.Exec(`
		INSERT INTO clients (server_id, full_name, phone, email, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullID(c.ServerID), c.FullName, c.Phone, nullStr(c.Email), nullStr(c.Address),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting client: %w", err)
	}
	return res.LastInsertId()
}

const clientColumns = "id, server_id, full_name, phone, email, address, created_at"

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var c Client
	var serverID sql.NullInt64
	var email, address sql.NullString
	var createdAt string
	if err := row.Scan(&c.ID, &serverID, &c.FullName, &c.Phone, &email, &address, &createdAt); err != nil {
		return Client{}, err
	}
	c.ServerID = serverID.Int64
	c.Email = email.String
	c.Address = address.String
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Client{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// ListClients returns all clients ordered by name. An empty store yields an
// empty slice, not an error.
func (s *Store) ListClients() ([]Client, error) {
	return s.queryClients("SELECT " + clientColumns + " FROM clients ORDER BY full_name")
}

// SearchClients matches by name or phone substring.
func (s *Store) SearchClients(query string) ([]Client, error) {
	like := "%" + query + "%"
	return s.queryClients(
		"SELECT "+clientColumns+" FROM clients WHERE full_name LIKE ? OR phone LIKE ? ORDER BY full_name",
		like, like,
	)
}

func (s *Store) queryClients(query string, args ...any) ([]Client, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// GetClient returns a single client by local id.
func (s *Store) GetClient(id int64) (Client, error) {
	c, err := scanClient(s.db.QueryRow("SELECT "+clientColumns+" FROM clients WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return Client{}, ErrNotFound
	}
	return c, err
}

// ImportClient inserts a server-originated client unless a row with the same
// server id already exists. Local rows without a server id are never touched.
func (s *Store) ImportClient(c Client) (MergeOutcome, error) {
	if c.ServerID == 0 {
		return MergeSkipped, fmt.Errorf("imported client must carry a server id")
	}
	res, err := s.db.Exec(`
		INSERT INTO clients (server_id, full_name, phone, email, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) WHERE server_id IS NOT NULL DO NOTHING`,
		c.ServerID, c.FullName, c.Phone, nullStr(c.Email), nullStr(c.Address),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return MergeSkipped, fmt.Errorf("importing client %d: %w", c.ServerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return MergeSkipped, err
	}
	if n == 0 {
		return MergeSkipped, nil
	}
	return MergeInserted, nil
}

// ClientIDByServerID resolves a server client id to the local row id.
func (s *Store) ClientIDByServerID(serverID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM clients WHERE server_id = ?", serverID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

// SetClientServerID records the server identity acknowledged for a local row.
func (s *Store) SetClientServerID(localID, serverID int64) error {
	res, err := s.db.Exec("UPDATE clients SET server_id = ? WHERE id = ?", serverID, localID)
	if err != nil {
		return fmt.Errorf("setting client server id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Patients ---

// CreatePatient inserts a locally created patient and returns its local id.
// The owning client must exist (local or synced).
func (s *Store) CreatePatient(p Patient) (int64, error) {
	if strings.TrimSpace(p.Name) == "" {
		return 0, fmt.Errorf("patient name is required")
	}
	if strings.TrimSpace(p.Species) == "" {
		return 0, fmt.Errorf("patient species is required")
	}
	if p.ClientID == 0 {
		return 0, fmt.Errorf("patient owner is required")
	}

	res, err := s.db.Exec(`
		INSERT INTO patients (server_id, name, species, breed, birth_date, gender, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(p.ServerID), p.Name, p.Species, nullStr(p.Breed), nullStr(p.BirthDate),
		nullStr(p.Gender), p.ClientID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting patient: %w", err)
	}
	return res.LastInsertId()
}

const patientColumns = "id, server_id, name, species, breed, birth_date, gender, client_id, created_at"

func scanPatient(row interface{ Scan(...any) error }) (Patient, error) {
	var p Patient
	var serverID sql.NullInt64
	var breed, birthDate, gender sql.NullString
	var createdAt string
	if err := row.Scan(&p.ID, &serverID, &p.Name, &p.Species, &breed, &birthDate, &gender, &p.ClientID, &createdAt); err != nil {
		return Patient{}, err
	}
	p.ServerID = serverID.Int64
	p.Breed = breed.String
	p.BirthDate = birthDate.String
	p.Gender = gender.String
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Patient{}, fmt.Errorf("parsing created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}

// PatientsByClient lists a client's patients ordered by name.
func (s *Store) PatientsByClient(clientID int64) ([]Patient, error) {
	rows, err := s.db.Query("SELECT "+patientColumns+" FROM patients WHERE client_id = ? ORDER BY name", clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ImportPatient inserts a server-originated patient unless a row with the
// same server id already exists.
func (s *Store) ImportPatient(p Patient) (MergeOutcome, error) {
	if p.ServerID == 0 {
		return MergeSkipped, fmt.Errorf("imported patient must carry a server id")
	}
	res, err := s.db.Exec(`
		INSERT INTO patients (server_id, name, species, breed, birth_date, gender, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) WHERE server_id IS NOT NULL DO NOTHING`,
		p.ServerID, p.Name, p.Species, nullStr(p.Breed), nullStr(p.BirthDate),
		nullStr(p.Gender), p.ClientID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return MergeSkipped, fmt.Errorf("importing patient %d: %w", p.ServerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return MergeSkipped, err
	}
	if n == 0 {
		return MergeSkipped, nil
	}
	return MergeInserted, nil
}

// SetPatientServerID records the server identity acknowledged for a local row.
func (s *Store) SetPatientServerID(localID, serverID int64) error {
	res, err := s.db.Exec("UPDATE patients SET server_id = ? WHERE id = ?", serverID, localID)
	if err != nil {
		return fmt.Errorf("setting patient server id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Nomenclature ---

// ListNomenclature returns the full price list ordered by name.
func (s *Store) ListNomenclature() ([]NomenclatureItem, error) {
	return s.queryNomenclature("SELECT id, name, type, price, category FROM nomenclature ORDER BY name")
}

// SearchNomenclature matches price-list entries by name substring.
func (s *Store) SearchNomenclature(query string) ([]NomenclatureItem, error) {
	return s.queryNomenclature(
		"SELECT id, name, type, price, category FROM nomenclature WHERE name LIKE ? ORDER BY name",
		"%"+query+"%",
	)
}

func (s *Store) queryNomenclature(query string, args ...any) ([]NomenclatureItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NomenclatureItem
	for rows.Next() {
		var item NomenclatureItem
		var category sql.NullString
		if err := rows.Scan(&item.ID, &item.Name, &item.Type, &item.Price, &category); err != nil {
			return nil, err
		}
		item.Category = category.String
		results = append(results, item)
	}
	return results, rows.Err()
}

// ReplaceAllNomenclature atomically replaces the whole price list. If any
// insert fails the transaction rolls back and the table keeps its pre-call
// contents.
func (s *Store) ReplaceAllNomenclature(items []NomenclatureItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning nomenclature replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nomenclature"); err != nil {
		return fmt.Errorf("clearing nomenclature: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, item := range items {
		if _, err := tx.Exec(`
			INSERT INTO nomenclature (id, name, type, price, category, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, item.Name, item.Type, item.Price, nullStr(item.Category), now,
		); err != nil {
			return fmt.Errorf("inserting nomenclature item %d: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// --- Appointments ---

// CreateAppointment inserts a locally created appointment and returns its
// local id.
func (s *Store) CreateAppointment(a Appointment) (int64, error) {
	if a.ClientID == 0 || a.PatientID == 0 {
		return 0, fmt.Errorf("appointment client and patient are required")
	}
	if a.Date == "" || a.Time == "" {
		return 0, fmt.Errorf("appointment date and time are required")
	}

	res, err := s.db.Exec(`
		INSERT INTO appointments (client_id, patient_id, appointment_date, appointment_time, doctor_name, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ClientID, a.PatientID, a.Date, a.Time, nullStr(a.DoctorName), nullStr(a.Notes),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting appointment: %w", err)
	}
	return res.LastInsertId()
}

// RecentAppointments returns appointments most-recent-first.
func (s *Store) RecentAppointments(limit int) ([]Appointment, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, patient_id, appointment_date, appointment_time, doctor_name, notes, created_at
		FROM appointments ORDER BY appointment_date DESC, appointment_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Appointment
	for rows.Next() {
		var a Appointment
		var doctor, notes sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ClientID, &a.PatientID, &a.Date, &a.Time, &doctor, &notes, &createdAt); err != nil {
			return nil, err
		}
		a.DoctorName = doctor.String
		a.Notes = notes.String
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		a.CreatedAt = t
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Invoices ---

// CreateInvoice inserts a locally created invoice and returns its local id.
// Line items are stored as a JSON snapshot.
func (s *Store) CreateInvoice(inv Invoice) (int64, error) {
	if inv.ClientID == 0 {
		return 0, fmt.Errorf("invoice client is required")
	}
	if len(inv.Items) == 0 {
		return 0, fmt.Errorf("invoice must have at least one line item")
	}
	if inv.PaymentStatus == "" {
		inv.PaymentStatus = PaymentPending
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return 0, fmt.Errorf("encoding invoice items: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO invoices (client_id, patient_id, items, total_amount, payment_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ClientID, nullID(inv.PatientID), string(itemsJSON), inv.TotalAmount,
		inv.PaymentStatus, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting invoice: %w", err)
	}
	return res.LastInsertId()
}

// RecentInvoices returns invoices most-recent-first with decoded line items.
func (s *Store) RecentInvoices(limit int) ([]Invoice, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, patient_id, items, total_amount, payment_status, created_at
		FROM invoices ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Invoice
	for rows.Next() {
		var inv Invoice
		var patientID sql.NullInt64
		var itemsJSON, createdAt string
		if err := rows.Scan(&inv.ID, &inv.ClientID, &patientID, &itemsJSON, &inv.TotalAmount, &inv.PaymentStatus, &createdAt); err != nil {
			return nil, err
		}
		inv.PatientID = patientID.Int64
		if err := json.Unmarshal([]byte(itemsJSON), &inv.Items); err != nil {
			return nil, fmt.Errorf("decoding items for invoice %d: %w", inv.ID, err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		inv.CreatedAt = t
		results = append(results, inv)
	}
	return results, rows.Err()
}
