package engine

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"taskping/internal/store"
	"taskping/pkg/logx"
)

// Consent protocol faults. All are rejected synchronously with no partial
// state mutation.
var (
	ErrSelfWatch      = errors.New("cannot watch your own tasks")
	ErrNoRecipient    = errors.New("target has no linked recipient channel")
	ErrAlreadyWatcher = errors.New("target is already a watcher")
	ErrRequestPending = errors.New("consent request already pending")
	ErrNoRequest      = errors.New("no pending consent request")
	ErrNotWatcher     = errors.New("target is not a watcher")
)

// IssueWatcherRequest starts the consent protocol: ownerID asks targetID to
// become a watcher of the owner's task notifications. The request stays
// pending on the target's settings until resolved or until the TTL expires.
// A second request for the same pair while one is pending is rejected, not
// overwritten.
func (e *Engine) IssueWatcherRequest(ctx context.Context, ownerID, targetID string) error {
	if ownerID == targetID {
		return ErrSelfWatch
	}
	targetChat, ok, err := e.st.ResolveRecipient(ctx, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoRecipient
	}

	ownerSettings, err := e.st.GetUserSettings(ctx, ownerID)
	if err != nil {
		return err
	}
	if slices.Contains(ownerSettings.TaskWatchers, targetID) {
		return ErrAlreadyWatcher
	}

	targetSettings, err := e.st.GetUserSettings(ctx, targetID)
	if err != nil {
		return err
	}
	cfg := e.snapshot()
	now := e.now()
	pending := prunePending(targetSettings.PendingWatcherRequests, now, cfg.WatcherRequestTTL)
	if _, exists := pending[ownerID]; exists {
		return ErrRequestPending
	}

	pending[ownerID] = store.PendingRequest{ID: uuid.NewString(), RequestedAt: now}
	if err := e.st.SetUserSettings(ctx, targetID, store.SettingsPatch{Pending: &pending}); err != nil {
		return err
	}

	e.out.Send(ctx, targetChat, consentPromptMessage(ownerID))
	e.log.Info("watcher consent request issued",
		logx.String("owner", ownerID), logx.String("target", targetID))
	return nil
}

// ResolveWatcherRequest records the target's answer. Accept moves the pair
// into the watcher relation; decline just clears the request. Either way
// the pending entry is deleted and the requester is informed.
func (e *Engine) ResolveWatcherRequest(ctx context.Context, ownerID, targetID string, accepted bool) error {
	targetSettings, err := e.st.GetUserSettings(ctx, targetID)
	if err != nil {
		return err
	}
	cfg := e.snapshot()
	now := e.now()
	pending := prunePending(targetSettings.PendingWatcherRequests, now, cfg.WatcherRequestTTL)
	if _, exists := pending[ownerID]; !exists {
		return ErrNoRequest
	}
	delete(pending, ownerID)
	if err := e.st.SetUserSettings(ctx, targetID, store.SettingsPatch{Pending: &pending}); err != nil {
		return err
	}

	if accepted {
		ownerSettings, err := e.st.GetUserSettings(ctx, ownerID)
		if err != nil {
			return err
		}
		if !slices.Contains(ownerSettings.TaskWatchers, targetID) {
			watchers := append(slices.Clone(ownerSettings.TaskWatchers), targetID)
			if err := e.st.SetUserSettings(ctx, ownerID, store.SettingsPatch{Watchers: &watchers}); err != nil {
				return err
			}
		}
	}

	if chat, ok, err := e.st.ResolveRecipient(ctx, ownerID); err == nil && ok {
		e.out.Send(ctx, chat, consentOutcomeMessage(targetID, accepted))
	}
	if !accepted {
		if chat, ok, err := e.st.ResolveRecipient(ctx, targetID); err == nil && ok {
			e.out.Send(ctx, chat, declineConfirmMessage(ownerID))
		}
	}
	e.log.Info("watcher consent request resolved",
		logx.String("owner", ownerID), logx.String("target", targetID), logx.Bool("accepted", accepted))
	return nil
}

// RemoveWatcher drops targetID from ownerID's watcher set. No counter-consent
// is needed to stop being watched from the owner's side.
func (e *Engine) RemoveWatcher(ctx context.Context, ownerID, targetID string) error {
	settings, err := e.st.GetUserSettings(ctx, ownerID)
	if err != nil {
		return err
	}
	idx := slices.Index(settings.TaskWatchers, targetID)
	if idx < 0 {
		return ErrNotWatcher
	}
	watchers := slices.Delete(slices.Clone(settings.TaskWatchers), idx, idx+1)
	if err := e.st.SetUserSettings(ctx, ownerID, store.SettingsPatch{Watchers: &watchers}); err != nil {
		return err
	}
	e.log.Info("watcher removed",
		logx.String("owner", ownerID), logx.String("target", targetID))
	return nil
}

// ListWatchers returns the accepted watcher ids for an owner.
func (e *Engine) ListWatchers(ctx context.Context, ownerID string) ([]string, error) {
	settings, err := e.st.GetUserSettings(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(settings.TaskWatchers), nil
}

// prunePending copies the map without entries older than the TTL. Expired
// requests read as absent; the pruned map is persisted by whichever write
// follows, so no background sweeper is needed.
func prunePending(m map[string]store.PendingRequest, now time.Time, ttl time.Duration) map[string]store.PendingRequest {
	out := make(map[string]store.PendingRequest, len(m))
	for k, v := range m {
		if now.Sub(v.RequestedAt) >= ttl {
			continue
		}
		out[k] = v
	}
	return out
}
