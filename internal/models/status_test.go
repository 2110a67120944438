package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusAssigned, true},
		{StatusNew, StatusNew, true},
		{StatusNew, StatusCompleted, false},
		{StatusAssigned, StatusCompleted, true},
		{StatusAssigned, StatusSentBack, true},
		{StatusAssigned, StatusNew, true},
		{StatusAssigned, StatusAssigned, false},
		{StatusPendingInvestigation, StatusAssigned, true},
		{StatusSentBack, StatusNew, true},
		{StatusSentBack, StatusAssigned, false},
		{StatusCompleted, StatusAssigned, false},
		{StatusUnableToHandle, StatusNew, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Sent_Back ")
	if err != nil || s != StatusSentBack {
		t.Fatalf("expected sent_back, got %q err=%v", s, err)
	}
	if _, err := ParseStatus("archived"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusUnableToHandle.Terminal() {
		t.Fatalf("completed and unable_to_handle must be terminal")
	}
	if StatusNew.Terminal() || StatusSentBack.Terminal() {
		t.Fatalf("new and sent_back must not be terminal")
	}
}

func TestSourcesOfAssigned(t *testing.T) {
	got := SourcesOf(StatusAssigned)
	if len(got) != 2 || got[0] != StatusNew || got[1] != StatusPendingInvestigation {
		t.Fatalf("unexpected sources %v", got)
	}
}

func TestRequestConsistent(t *testing.T) {
	a := "a1"
	if !(Request{Status: StatusAssigned, AssignedTo: &a}).Consistent() {
		t.Fatalf("assigned with assignee must be consistent")
	}
	if (Request{Status: StatusCompleted, AssignedTo: &a}).Consistent() {
		t.Fatalf("completed with assignee must be inconsistent")
	}
	if (Request{Status: StatusAssigned}).Consistent() {
		t.Fatalf("assigned without assignee must be inconsistent")
	}
}
