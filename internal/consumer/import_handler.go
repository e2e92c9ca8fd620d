package consumer

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	"example.com/swimrun/internal/domain"
	"example.com/swimrun/internal/events"
)

// SessionImporter stores imported sessions.
type SessionImporter interface {
	ImportSession(ctx context.Context, evt events.SessionImported) (*domain.SessionRecord, bool, error)
}

// ImportHandler turns session.imported events into stored sessions.
type ImportHandler struct {
	importer SessionImporter
	logger   log.FieldLogger
}

// NewImportHandler constructs an ImportHandler.
func NewImportHandler(importer SessionImporter, logger log.FieldLogger) *ImportHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ImportHandler{importer: importer, logger: logger}
}

// Handle imports one row. Rows that can never succeed are logged and
// acknowledged; only storage failures are returned so the message is retried.
func (h *ImportHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeSessionImported {
		h.logger.WithField("event_type", msg.EventType).Debug("ignoring event")
		return nil
	}

	var evt events.SessionImported
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		h.logger.WithError(err).WithField("offset", msg.Offset).Warn("rejecting malformed import row")
		recordRejected("malformed")
		return nil
	}
	if evt.TenantID == "" {
		evt.TenantID = msg.TenantID
	}

	record, replay, err := h.importer.ImportSession(ctx, evt)
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		h.logger.WithError(err).WithField("external_id", evt.ExternalID).Warn("rejecting invalid import row")
		recordRejected("invalid")
		return nil
	case err != nil:
		return err
	case record == nil:
		h.logger.WithField("external_id", evt.ExternalID).Info("skipped undated import row")
	case replay:
		h.logger.WithField("session_id", record.ID).Debug("import row already stored")
	default:
		h.logger.WithFields(log.Fields{"session_id": record.ID, "tenant_id": record.TenantID}).Debug("imported session")
	}
	return nil
}
