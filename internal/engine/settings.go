package engine

import (
	"context"
	"errors"

	"taskping/internal/store"
	"taskping/internal/timezone"
	"taskping/pkg/logx"
)

// ErrTimezoneUnknown is returned when free-text detection finds neither an
// abbreviation nor a parseable clock time.
var ErrTimezoneUnknown = errors.New("could not detect a timezone")

// SaveUserTimezone detects a timezone from free text ("3:15pm", "CST") and
// merge-writes the resulting profile onto the owner's settings. The returned
// guess carries NeedsConfirmation when only a numeric offset was resolved;
// confirming with the user is the caller's job, the profile is stored either
// way so the number survives the round trip.
func (e *Engine) SaveUserTimezone(ctx context.Context, ownerID, input string) (timezone.Guess, error) {
	g, ok := timezone.Detect(input, e.now())
	if !ok {
		return timezone.Guess{}, ErrTimezoneUnknown
	}
	profile := store.TimezoneProfile{
		Zone:         g.Zone,
		Offset:       g.Offset,
		Display:      g.Display,
		Abbreviation: g.Abbreviation,
	}
	if err := e.st.SetUserSettings(ctx, ownerID, store.SettingsPatch{Timezone: &profile}); err != nil {
		return timezone.Guess{}, err
	}
	e.log.Info("timezone profile saved",
		logx.String("owner", ownerID),
		logx.String("zone", g.Zone),
		logx.Int("offset", g.Offset))
	return g, nil
}

// GetUserTimezone reads the owner's stored timezone profile. ok is false
// when the owner has never completed timezone setup.
func (e *Engine) GetUserTimezone(ctx context.Context, ownerID string) (store.TimezoneProfile, bool, error) {
	s, err := e.st.GetUserSettings(ctx, ownerID)
	if err != nil {
		return store.TimezoneProfile{}, false, err
	}
	if s.Timezone == "" && s.TimezoneDisplay == "" {
		return store.TimezoneProfile{}, false, nil
	}
	return store.TimezoneProfile{
		Zone:         s.Timezone,
		Offset:       s.TimezoneOffset,
		Display:      s.TimezoneDisplay,
		Abbreviation: s.TimezoneAbbreviation,
	}, true, nil
}
