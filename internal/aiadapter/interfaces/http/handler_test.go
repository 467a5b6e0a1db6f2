package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"carecoord/internal/aiadapter"
	inbox "carecoord/internal/inbox/domain"
)

type stubAnalyzer struct {
	result aiadapter.AnalysisResult
	err    error
	text   string
}

func (a *stubAnalyzer) Analyze(ctx context.Context, text, patientContext string) (aiadapter.AnalysisResult, error) {
	a.text = text
	return a.result, a.err
}

type recordingInbox struct {
	patientID string
	subject   string
	body      string
	calls     int
}

func (r *recordingInbox) SendToDoctor(ctx context.Context, patientID, subject, body string) (*inbox.Message, error) {
	r.calls++
	r.patientID = patientID
	r.subject = subject
	r.body = body
	return &inbox.Message{ID: "msg-1"}, nil
}

func newTestLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func TestAnalysisHandlerDeliversToInbox(t *testing.T) {
	analyzer := &stubAnalyzer{result: aiadapter.AnalysisResult{Success: true, Content: "Adherence trending down."}}
	doctorInbox := &recordingInbox{}
	handler, err := NewHandler(analyzer, doctorInbox, newTestLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := strings.NewReader(`{"text":"Patient missed doses this week","patient_id":"patient-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", recorder.Code, recorder.Body.String())
	}
	var resp analyzeResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Content != "Adherence trending down." {
		t.Fatalf("unexpected response %+v", resp)
	}
	if doctorInbox.calls != 1 {
		t.Fatalf("expected one inbox delivery, got %d", doctorInbox.calls)
	}
	if doctorInbox.patientID != "patient-1" || doctorInbox.body != "Adherence trending down." {
		t.Fatalf("unexpected delivery %+v", doctorInbox)
	}
}

func TestAnalysisHandlerFailureSkipsInbox(t *testing.T) {
	analyzer := &stubAnalyzer{result: aiadapter.AnalysisResult{Success: false, Error: "upstream unavailable"}}
	doctorInbox := &recordingInbox{}
	handler, err := NewHandler(analyzer, doctorInbox, newTestLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := strings.NewReader(`{"text":"notes","patient_id":"patient-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status %d", recorder.Code)
	}
	var resp analyzeResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error != "upstream unavailable" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if doctorInbox.calls != 0 {
		t.Fatalf("expected no inbox delivery, got %d", doctorInbox.calls)
	}
}

func TestAnalysisHandlerRejectsEmptyText(t *testing.T) {
	handler, err := NewHandler(&stubAnalyzer{}, nil, newTestLogger())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(`{"text":"  "}`))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status %d", recorder.Code)
	}
}
