package app

import (
	"errors"
	"time"

	"github.com/ayusman/edgelive/internal/buffer"
	"github.com/ayusman/edgelive/internal/imaging"
	"github.com/ayusman/edgelive/internal/store"
)

// record writes a request outcome to the request log, if one is configured.
func (a *App) record(l buffer.Lane, snap snapshot, outcome store.Outcome, reqErr error, took time.Duration) {
	if a.config.Log == nil {
		return
	}

	opts, err := snap.Params.MarshalOptions()
	if err != nil {
		opts = []byte("{}")
	}

	req := &store.Request{
		Lane:       string(l),
		Epoch:      snap.Epoch,
		SessionID:  snap.SessionID,
		Algorithm:  string(snap.Params.Algorithm),
		Params:     string(opts),
		Outcome:    outcome,
		DurationMs: took.Milliseconds(),
	}
	if reqErr != nil {
		req.Error = reqErr.Error()
	}

	if err := a.config.Log.Requests().Record(req); err != nil {
		a.log.Error().Err(err).Msg("failed to record request")
	}
}

// recordSession logs a newly accepted image and closes out the one it replaced.
func (a *App) recordSession(prev, id string, prepared *imaging.Prepared) {
	if a.config.Log == nil {
		return
	}

	if prev != "" && prev != id {
		a.clearSessionRecord(prev)
	}

	err := a.config.Log.Sessions().Create(&store.Session{
		ID:       id,
		Filename: prepared.Filename,
		Width:    prepared.Width,
		Height:   prepared.Height,
		Resized:  prepared.Resized,
	})
	if err != nil {
		a.log.Error().Err(err).Str("session", id).Msg("failed to record session")
	}
}

func (a *App) clearSessionRecord(id string) {
	if a.config.Log == nil || id == "" {
		return
	}
	if err := a.config.Log.Sessions().MarkCleared(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		a.log.Error().Err(err).Str("session", id).Msg("failed to record session end")
	}
}
