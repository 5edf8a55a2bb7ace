package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"PensionSentinel/internal/approval"
	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/batch"
	"PensionSentinel/internal/chain"
	"PensionSentinel/internal/store"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// rejections are named conditions that make an approval impossible as
// requested; the proposal stays Pending.
var rejections = []error{
	approval.ErrMissingAllocation,
	approval.ErrMissingTarget,
	approval.ErrSignerNotConfigured,
	approval.ErrInvalidFundContract,
	approval.ErrContractPaused,
	approval.ErrOwnerMismatch,
	approval.ErrFundAssetMismatch,
	approval.ErrInsufficientBalance,
	approval.ErrExistingPosition,
	approval.ErrTargetAssetMismatch,
	approval.ErrTargetHasNoCode,
	asset.ErrUnknownAsset,
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var revert *chain.RevertError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNotPending), errors.Is(err, batch.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, approval.ErrMissingApprover):
		return http.StatusBadRequest
	case errors.As(err, &revert):
		return http.StatusUnprocessableEntity
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}
