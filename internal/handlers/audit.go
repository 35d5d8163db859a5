// Package handlers holds the echo handlers of the public API.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	ctxmiddleware "github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
)

// AuditRecorder is implemented by *events.Recorder.
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

type auditor struct {
	recorder AuditRecorder
	logger   ectologger.Logger
}

func (a auditor) record(ctx context.Context, eventType string, status int, reasonCodes []string, meta map[string]any) {
	if a.recorder == nil {
		return
	}
	if reasonCodes == nil {
		reasonCodes = []string{}
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("failed to encode audit meta")
		raw = json.RawMessage(`{}`)
	}

	a.recorder.Record(ctx, models.AuditEvent{
		ProjectID:   ctxmiddleware.GetProjectID(ctx),
		RequestID:   ctxmiddleware.GetRequestID(ctx),
		Type:        eventType,
		Endpoint:    ctxmiddleware.GetRoute(ctx),
		ReasonCodes: reasonCodes,
		Status:      status,
		Meta:        raw,
	})
}
