package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// SettingsKey is the Store key holding user settings.
const SettingsKey = "settings"

type settings struct {
	Notification core.NotificationMode `json:"notification"`
}

// Popup projects queue occupancy onto the badge and the approval window.
type Popup struct {
	ui     ports.ApprovalUI
	store  ports.Store
	counts func() (auth, metadata, signing int)
	logger watermill.LoggerAdapter

	mu        sync.Mutex
	mode      core.NotificationMode
	lastBadge string
	lastTotal int

	// uiMu serializes calls into ui. mu is never acquired while holding it.
	uiMu sync.Mutex
}

// NewPopup creates a coordinator reading pending counts from counts.
func NewPopup(ui ports.ApprovalUI, store ports.Store, mode core.NotificationMode,
	counts func() (int, int, int), logger watermill.LoggerAdapter) *Popup {

	return &Popup{
		ui:     ui,
		store:  store,
		counts: counts,
		mode:   mode,
		logger: logger.With(watermill.LogFields{"component": "popup"}),
	}
}

// Load reads the persisted notification mode, keeping the default when none
// was saved.
func (p *Popup) Load(ctx context.Context) error {
	data, ok, err := p.store.Get(ctx, SettingsKey)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if !ok {
		return nil
	}

	var s settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.Notification.Valid() {
		p.mu.Lock()
		p.mode = s.Notification
		p.mu.Unlock()
	}

	return nil
}

// SetNotification persists and applies a notification mode.
func (p *Popup) SetNotification(ctx context.Context, mode core.NotificationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: notification mode %q", core.ErrInvalidPayload, mode)
	}

	data, err := json.Marshal(settings{Notification: mode})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := p.store.Set(ctx, SettingsKey, data); err != nil {
		p.logger.Error("Failed to persist settings", err, nil)
		return fmt.Errorf("failed to persist settings: %w", err)
	}

	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()

	return nil
}

// Notification returns the current mode.
func (p *Popup) Notification() core.NotificationMode {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mode
}

// Badge returns the badge text for the current queue state.
func (p *Popup) Badge() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastBadge
}

// Recompute refreshes the badge and opens or closes the approval window.
// The window opens whenever a request arrives, unless notifications are
// extension-only, and closes once nothing is pending.
func (p *Popup) Recompute(ctx context.Context) {
	p.mu.Lock()
	auth, metadata, signing := p.counts()
	total := auth + metadata + signing
	badge := badgeText(auth, metadata, signing)

	mode := p.mode
	setBadge := badge != p.lastBadge
	open := total > p.lastTotal && mode != core.NotificationExtension
	closeWindow := total == 0 && p.lastTotal > 0
	p.lastBadge = badge
	p.lastTotal = total

	// uiMu is taken before mu is released so the UI sees transitions in the
	// order they were computed.
	p.uiMu.Lock()
	p.mu.Unlock()
	defer p.uiMu.Unlock()

	if setBadge {
		if err := p.ui.SetBadge(ctx, badge); err != nil {
			p.logger.Error("Failed to set badge", err, watermill.LogFields{"badge": badge})
		}
	}

	switch {
	case open:
		if err := p.ui.Open(ctx, mode); err != nil {
			p.logger.Error("Failed to open approval window", err, nil)
		}
	case closeWindow:
		if err := p.ui.Close(ctx); err != nil {
			p.logger.Error("Failed to close approval window", err, nil)
		}
	}
}

func badgeText(auth, metadata, signing int) string {
	switch {
	case auth > 0:
		return "Auth"
	case metadata > 0:
		return "Meta"
	case signing > 0:
		return strconv.Itoa(signing)
	}
	return ""
}
