package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/storage"
)

// Audit trail for accounting-backend calls made while reconciling.

// ensureRunID returns ctx tagged with a run id, minting one if needed.
func ensureRunID(ctx context.Context) (context.Context, string) {
	if id := RunIDFrom(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRunID(ctx, id), id
}

// audited runs fn and records the call, its request and its outcome.
func audited[T any](o *Orchestrator, ctx context.Context, transactionID, method string, request interface{}, fn func() (T, error)) (T, error) {
	start := time.Now()
	response, err := fn()
	o.logAPICall(ctx, transactionID, method, request, response, err, time.Since(start).Milliseconds())
	return response, err
}

// logAPICall logs an API call to the database for audit trail
func (o *Orchestrator) logAPICall(ctx context.Context, transactionID, method string, request, response interface{}, err error, durationMs int64) {
	if o.ledger == nil {
		return
	}

	requestJSON, marshalErr := json.Marshal(request)
	if marshalErr != nil {
		o.logger.Warn("Failed to marshal request for API log", "method", method, "error", marshalErr)
		requestJSON = []byte(fmt.Sprintf(`{"error": "failed to marshal: %v"}`, marshalErr))
	}

	responseJSON := []byte("null")
	if err == nil {
		responseJSON, marshalErr = json.Marshal(response)
		if marshalErr != nil {
			o.logger.Warn("Failed to marshal response for API log", "method", method, "error", marshalErr)
			responseJSON = []byte(fmt.Sprintf(`{"error": "failed to marshal: %v"}`, marshalErr))
		}
	}

	errStr := ""
	if err != nil {
		errStr = err.Error()
	}

	apiCall := &storage.APICall{
		RunID:         RunIDFrom(ctx),
		TransactionID: transactionID,
		Method:        method,
		RequestJSON:   string(requestJSON),
		ResponseJSON:  string(responseJSON),
		Error:         errStr,
		DurationMs:    durationMs,
	}

	if err := o.ledger.LogAPICall(ctx, apiCall); err != nil {
		o.logger.Warn("Failed to log API call", "method", method, "error", err)
	}
}
