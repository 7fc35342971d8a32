package syncer

import (
	"encoding/json"
	"testing"

	"github.com/ssavin/vetsync/internal/storage"
)

func TestEncodeClientPayload(t *testing.T) {
	payload, err := EncodeClientPayload(storage.Client{
		ID:       7,
		FullName: "Иванова Мария",
		Phone:    "+7 900 111-22-33",
		Email:    "maria@example.com",
	})
	if err != nil {
		t.Fatalf("EncodeClientPayload error: %v", err)
	}

	var decoded ClientPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Version != payloadVersion {
		t.Errorf("Version = %d, want %d", decoded.Version, payloadVersion)
	}
	if decoded.LocalID != 7 {
		t.Errorf("LocalID = %d, want 7", decoded.LocalID)
	}
	if decoded.FullName != "Иванова Мария" {
		t.Errorf("FullName = %q", decoded.FullName)
	}
}

func TestEncodeInvoicePayloadKeepsItemSnapshot(t *testing.T) {
	payload, err := EncodeInvoicePayload(storage.Invoice{
		ID:       3,
		ClientID: 1,
		Items: []storage.InvoiceItem{
			{NomenclatureID: 5, Name: "Осмотр", Quantity: 1, Price: 500, Total: 500},
		},
		TotalAmount:   500,
		PaymentStatus: storage.PaymentPending,
	})
	if err != nil {
		t.Fatalf("EncodeInvoicePayload error: %v", err)
	}

	var decoded InvoicePayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(decoded.Items) != 1 || decoded.Items[0].Price != 500 {
		t.Errorf("Items = %+v", decoded.Items)
	}
	if decoded.PaymentStatus != storage.PaymentPending {
		t.Errorf("PaymentStatus = %q", decoded.PaymentStatus)
	}
}

func TestDecodePayloadLocalID(t *testing.T) {
	payload, err := EncodePatientPayload(storage.Patient{ID: 42, Name: "Барсик", Species: "кошка", ClientID: 1})
	if err != nil {
		t.Fatalf("EncodePatientPayload error: %v", err)
	}

	id, err := DecodePayloadLocalID(payload)
	if err != nil {
		t.Fatalf("DecodePayloadLocalID error: %v", err)
	}
	if id != 42 {
		t.Errorf("local id = %d, want 42", id)
	}

	if _, err := DecodePayloadLocalID("not json"); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := DecodePayloadLocalID("{}"); err == nil {
		t.Error("expected error for payload without local_id")
	}
}
