package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/secops-portal/backend/internal/models"
	"github.com/secops-portal/backend/internal/service"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ValidationError{Message: "x"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("claim: %w", models.ErrClaimConflict), http.StatusConflict, "CLAIM_CONFLICT"},
		{models.ErrClaimChanged, http.StatusConflict, "CLAIM_CHANGED"},
		{models.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{models.ErrNotEligible, http.StatusForbidden, "NOT_ELIGIBLE"},
		{models.ErrAutoAssignDisabled, http.StatusUnprocessableEntity, "AUTO_ASSIGN_DISABLED"},
		{models.ErrNoAvailableAgent, http.StatusUnprocessableEntity, "NO_AVAILABLE_AGENT"},
		{&service.StageError{Completed: "comment", Failed: "status update", Err: models.ErrInvalidTransition}, http.StatusConflict, "INVALID_TRANSITION"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d %s, got %d %s", tc.err, tc.status, tc.code, status, code)
		}
	}
}
