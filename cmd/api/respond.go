package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"agrinetwork/auth"
	"agrinetwork/dispute"
	"agrinetwork/order"
	"agrinetwork/product"
	"agrinetwork/wallet"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON for this endpoint")
		return false
	}
	return true
}

type mappedError struct {
	target  error
	status  int
	code    string
	message string
}

// errorTable maps domain errors to HTTP responses. Order matters: the first match wins.
var errorTable = []mappedError{
	{order.ErrOrderNotFound, http.StatusNotFound, "order_not_found", "order not found"},
	{dispute.ErrOrderNotFound, http.StatusNotFound, "order_not_found", "order not found"},
	{product.ErrNotFound, http.StatusNotFound, "product_not_found", "product not found"},
	{auth.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{order.ErrForbidden, http.StatusForbidden, "forbidden", "actor may not perform this action"},
	{dispute.ErrForbidden, http.StatusForbidden, "forbidden", "sender is not a party to this order"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden", "only support or admin accounts may review identity"},
	{errIdentityMismatch, http.StatusForbidden, "forbidden", "token subject does not match the acting user"},
	{order.ErrInsufficientKYC, http.StatusForbidden, "kyc_required", "identity verification is required for this action"},
	{wallet.ErrKYCRequired, http.StatusForbidden, "kyc_required", "identity verification is required to withdraw"},
	{product.ErrKYCRequired, http.StatusForbidden, "kyc_required", "identity verification is required to list products"},
	{order.ErrInvalidTransition, http.StatusBadRequest, "invalid_transition", "action is not legal from the order's current state"},
	{order.ErrInvalidQuantity, http.StatusBadRequest, "validation_failed", "quantity must be between 1 and 2147483647"},
	{order.ErrTotalTooLarge, http.StatusBadRequest, "validation_failed", "order total exceeds 999999999999.99"},
	{order.ErrInvalidStatus, http.StatusBadRequest, "validation_failed", "unknown status filter"},
	{order.ErrSelfPurchase, http.StatusBadRequest, "validation_failed", "sellers cannot buy their own products"},
	{dispute.ErrEmptyMessage, http.StatusBadRequest, "validation_failed", "message needs text or an attachment"},
	{dispute.ErrMessageTooLong, http.StatusBadRequest, "validation_failed", "message is too long"},
	{dispute.ErrMissingSender, http.StatusBadRequest, "validation_failed", "senderId is required"},
	{product.ErrInvalidPrice, http.StatusBadRequest, "validation_failed", "unitPrice must be positive, at most 999999999999.99, with at most two decimals"},
	{product.ErrInvalidName, http.StatusBadRequest, "validation_failed", "name is required"},
	{wallet.ErrInvalidAmount, http.StatusBadRequest, "validation_failed", "amount must be positive with at most two decimals"},
	{wallet.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds", "amount exceeds wallet balance"},
	{auth.ErrInvalidKYCStatus, http.StatusBadRequest, "validation_failed", "unknown kyc status"},
	{auth.ErrInvalidSubmission, http.StatusBadRequest, "validation_failed", "idImageUrl and selfieImageUrl are required"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "validation_failed", "password must be at least 8 characters"},
	{auth.ErrMissingFields, http.StatusBadRequest, "validation_failed", "email and full_name are required"},
	{auth.ErrDuplicateEmail, http.StatusConflict, "email_taken", "email already registered"},
	{auth.ErrAlreadyVerified, http.StatusConflict, "already_verified", "identity is already verified"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
}

// writeDomainError translates err into the JSON error contract. Unknown errors are
// logged and reported as 500 without details.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.message)
			return
		}
	}
	if errors.Is(err, order.ErrPersistence) {
		s.logger.Warn("retryable persistence failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "persistence_error",
			Message:   "storage failure; the request had no effect and may be retried",
			Retryable: true,
		})
		return
	}
	s.logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}
