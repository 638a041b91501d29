package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "github.com/therapii/api-server-go/internal/errors"
	"github.com/therapii/api-server-go/internal/httputil"
	"github.com/therapii/api-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.InvalidArgument("Request body too large")
		}
		return apperrors.InvalidArgument("Invalid request body")
	}
	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// formatInvitation is the caller-facing shape of an invitation. withUsage adds
// usedAt and patientId.
func formatInvitation(inv *model.InvitationCode, withUsage bool) map[string]any {
	out := map[string]any{
		"id":               inv.ID,
		"code":             inv.Code,
		"therapistId":      inv.TherapistID,
		"patientEmail":     inv.PatientEmail,
		"patientFirstName": inv.PatientFirstName,
		"patientLastName":  inv.PatientLastName,
		"isUsed":           inv.IsUsed,
		"createdAt":        inv.CreatedAt.UTC().Format(time.RFC3339),
		"expiresAt":        inv.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if withUsage {
		out["usedAt"] = formatTime(inv.UsedAt)
		if inv.PatientID != nil {
			out["patientId"] = *inv.PatientID
		} else {
			out["patientId"] = nil
		}
	}
	return out
}
