package dsync

import (
	"context"
	"fmt"
)

// MirrorDocumentName is the blob name of the remote files index copy.
const MirrorDocumentName = "files.json"

// Outcomes of a mirror sync, as reported to Metrics.
const (
	MirrorPatched  = "patched"
	MirrorUploaded = "uploaded"
	MirrorFailed   = "failed"
)

// Mirror keeps one remote copy of the files index current. The pointer
// store records where the live copy is. Mirror is not safe for concurrent
// Sync calls; the Engine serializes them.
type Mirror struct {
	transport Transport
	endpoints EndpointSelector
	pointers  PointerStore
	clock     Clock
	logger    Logger
}

func NewMirror(transport Transport, endpoints EndpointSelector, pointers PointerStore, clock Clock, logger Logger) *Mirror {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Mirror{
		transport: transport,
		endpoints: endpoints,
		pointers:  pointers,
		clock:     clock,
		logger:    logger,
	}
}

// Sync publishes doc. An existing copy is edited in place when possible;
// otherwise a new copy is uploaded through a freshly selected endpoint, the
// pointer is moved to it and the old copy is deleted on a best-effort
// basis. A failed fresh upload leaves the pointer untouched.
func (m *Mirror) Sync(ctx context.Context, doc []byte) (string, error) {
	prev, err := m.pointers.Load()
	if err != nil {
		m.logger.Warn("mirror pointer unreadable, uploading a new copy", "error", err)
		prev = nil
	}
	hasPrev := prev != nil && prev.Endpoint != "" && prev.MessageID != ""

	if hasPrev {
		blob, err := m.transport.Patch(ctx, prev.Endpoint, prev.MessageID, doc, MirrorDocumentName)
		if err == nil && (blob == nil || blob.Locator == "") {
			err = ErrMissingLocator
		}
		if err == nil {
			next := &MirrorPointer{
				Endpoint:    prev.Endpoint,
				MessageID:   prev.MessageID,
				Locator:     blob.Locator,
				LastUpdated: NewTimestamp(m.clock.Now()),
			}
			if blob.MessageID != "" {
				next.MessageID = blob.MessageID
			}
			if err := m.pointers.Save(next); err != nil {
				return "", fmt.Errorf("saving mirror pointer: %w", err)
			}
			return MirrorPatched, nil
		}
		m.logger.Info("patching remote index failed, uploading a new copy", "message_id", prev.MessageID, "error", err)
	}

	endpoint, err := m.endpoints.Select()
	if err != nil {
		return "", err
	}
	blob, err := m.transport.Upload(ctx, endpoint, doc, MirrorDocumentName)
	if err == nil && (blob == nil || blob.Locator == "") {
		err = ErrMissingLocator
	}
	if err != nil {
		return "", fmt.Errorf("uploading remote index: %w", err)
	}

	next := &MirrorPointer{
		Endpoint:    endpoint,
		MessageID:   blob.MessageID,
		Locator:     blob.Locator,
		LastUpdated: NewTimestamp(m.clock.Now()),
	}
	if err := m.pointers.Save(next); err != nil {
		return "", fmt.Errorf("saving mirror pointer: %w", err)
	}

	if hasPrev {
		if err := m.transport.Delete(ctx, prev.Endpoint, prev.MessageID); err != nil {
			m.logger.Warn("deleting previous remote index failed", "message_id", prev.MessageID, "error", err)
		} else {
			m.logger.Debug("deleted previous remote index", "message_id", prev.MessageID)
		}
	}
	return MirrorUploaded, nil
}

// Pull fetches the live remote copy of the files index.
func (m *Mirror) Pull(ctx context.Context) ([]byte, error) {
	p, err := m.pointers.Load()
	if err != nil {
		return nil, fmt.Errorf("loading mirror pointer: %w", err)
	}
	if p == nil || p.Locator == "" {
		return nil, fmt.Errorf("remote index: %w", ErrNotFound)
	}
	data, err := m.transport.Fetch(ctx, p.Locator)
	if err != nil {
		return nil, fmt.Errorf("fetching remote index: %w", err)
	}
	return data, nil
}

// Pointer returns the current pointer record, nil when there is none.
func (m *Mirror) Pointer() (*MirrorPointer, error) {
	return m.pointers.Load()
}
