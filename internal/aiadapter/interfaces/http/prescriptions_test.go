package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carecoord/internal/aiadapter"
	inbox "carecoord/internal/inbox/domain"
)

type recordingPatientInbox struct {
	patientID string
	subject   string
	body      string
	calls     int
}

func (r *recordingPatientInbox) SendToPatient(ctx context.Context, patientID, subject, body string) (*inbox.Message, error) {
	r.calls++
	r.patientID = patientID
	r.subject = subject
	r.body = body
	return &inbox.Message{ID: "msg-2"}, nil
}

func TestPrescriptionHandlerDeliversMedicineList(t *testing.T) {
	analyzer := &stubAnalyzer{result: aiadapter.AnalysisResult{Success: true, Content: "1. Metformin 500mg, morning\n2. Lisinopril 10mg, evening"}}
	patientInbox := &recordingPatientInbox{}
	handler, err := NewPrescriptionHandler(analyzer, patientInbox, newTestLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := strings.NewReader(`{"patient_id":"patient-1","text":"Rx: metformin 500mg bid, lisinopril 10mg qd"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", body)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", recorder.Code, recorder.Body.String())
	}
	var resp prescriptionResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.MessageID != "msg-2" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if patientInbox.calls != 1 {
		t.Fatalf("expected one inbox delivery, got %d", patientInbox.calls)
	}
	if patientInbox.patientID != "patient-1" || !strings.Contains(patientInbox.body, "Metformin") {
		t.Fatalf("unexpected delivery %+v", patientInbox)
	}
}

func TestPrescriptionHandlerUpstreamFailureSkipsDelivery(t *testing.T) {
	analyzer := &stubAnalyzer{result: aiadapter.AnalysisResult{Success: false, Error: "upstream unavailable"}}
	patientInbox := &recordingPatientInbox{}
	handler, err := NewPrescriptionHandler(analyzer, patientInbox, newTestLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := strings.NewReader(`{"patient_id":"patient-1","text":"Rx: metformin"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", body)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", recorder.Code)
	}
	if patientInbox.calls != 0 {
		t.Fatalf("expected no inbox delivery, got %d", patientInbox.calls)
	}
}

func TestPrescriptionHandlerRequiresPatient(t *testing.T) {
	handler, err := NewPrescriptionHandler(&stubAnalyzer{}, &recordingPatientInbox{}, newTestLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", strings.NewReader(`{"text":"Rx: metformin"}`))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", recorder.Code)
	}
}
