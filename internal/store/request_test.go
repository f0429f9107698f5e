package store

import (
	"errors"
	"testing"
)

func TestRequestRepository_Record(t *testing.T) {
	s := newTestStore(t)
	repo := s.Requests()

	req := &Request{
		Lane:       "upload",
		Epoch:      3,
		SessionID:  "img-1",
		Algorithm:  "canny",
		Params:     `{"threshold1":120}`,
		Outcome:    OutcomeApplied,
		DurationMs: 42,
	}
	if err := repo.Record(req); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if req.ID == "" {
		t.Fatal("Record() should assign an ID")
	}

	got, err := repo.GetByID(req.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Epoch != 3 || got.SessionID != "img-1" || got.Outcome != OutcomeApplied || got.DurationMs != 42 {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.Params != `{"threshold1":120}` {
		t.Errorf("Params = %s", got.Params)
	}
}

func TestRequestRepository_RejectsUnknownLane(t *testing.T) {
	s := newTestStore(t)

	err := s.Requests().Record(&Request{Lane: "fax", Algorithm: "canny", Outcome: OutcomeFailed})
	if err == nil {
		t.Error("Record() with unknown lane should fail")
	}
}

func TestRequestRepository_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Requests().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRequestRepository_ListAndCounts(t *testing.T) {
	s := newTestStore(t)
	repo := s.Requests()

	records := []*Request{
		{Lane: "upload", Epoch: 1, Algorithm: "canny", Outcome: OutcomeDiscarded},
		{Lane: "upload", Epoch: 2, Algorithm: "canny", Outcome: OutcomeApplied},
		{Lane: "webcam", Epoch: 1, Algorithm: "sobel", Outcome: OutcomeFailed, Error: "boom"},
		{Lane: "webcam", Epoch: 2, Algorithm: "sobel", Outcome: OutcomeApplied},
	}
	for _, r := range records {
		if err := repo.Record(r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		lane  string
		limit int
		want  int
	}{
		{name: "all lanes", lane: "", limit: 0, want: 4},
		{name: "upload lane", lane: "upload", limit: 0, want: 2},
		{name: "limited", lane: "", limit: 3, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(tt.lane, tt.limit)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d, want %d", len(got), tt.want)
			}
		})
	}

	latest, _ := repo.List("webcam", 1)
	if len(latest) != 1 || latest[0].Epoch != 2 {
		t.Errorf("latest webcam request = %+v, want epoch 2", latest)
	}

	counts, err := repo.Counts("")
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[OutcomeApplied] != 2 || counts[OutcomeFailed] != 1 || counts[OutcomeDiscarded] != 1 {
		t.Errorf("Counts() = %v", counts)
	}

	webcam, _ := repo.Counts("webcam")
	if webcam[OutcomeDiscarded] != 0 || webcam[OutcomeApplied] != 1 {
		t.Errorf("Counts(webcam) = %v", webcam)
	}
}
