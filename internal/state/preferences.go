package state

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Theme is the colour scheme of the terminal UI.
type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeAuto, ThemeDark, ThemeLight:
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q (want auto, dark or light)", s)
}

// Preference keys.
const (
	KeyTheme       = "ui.theme"
	KeySidebarOpen = "ui.sidebar_open"
)

// Preferences is the UI state shared by every workspace. It is loaded once
// from the store and every setter writes through before updating memory.
type Preferences struct {
	store *Store

	mu          sync.RWMutex
	theme       Theme
	sidebarOpen bool
}

// LoadPreferences reads the stored preferences, falling back to defaults for
// keys never written or holding values this version does not understand.
func LoadPreferences(ctx context.Context, s *Store) (*Preferences, error) {
	p := &Preferences{store: s, theme: ThemeAuto, sidebarOpen: true}

	raw, ok, err := s.Get(ctx, KeyTheme)
	if err != nil {
		return nil, err
	}
	if ok {
		if t, err := ParseTheme(raw); err == nil {
			p.theme = t
		}
	}

	raw, ok, err = s.Get(ctx, KeySidebarOpen)
	if err != nil {
		return nil, err
	}
	if ok {
		if b, err := strconv.ParseBool(raw); err == nil {
			p.sidebarOpen = b
		}
	}
	return p, nil
}

func (p *Preferences) Theme() Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theme
}

func (p *Preferences) SidebarOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sidebarOpen
}

// SetTheme persists and applies t.
func (p *Preferences) SetTheme(ctx context.Context, t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Set(ctx, KeyTheme, string(t)); err != nil {
		return err
	}
	p.theme = t
	return nil
}

// SetSidebarOpen persists and applies the sidebar visibility.
func (p *Preferences) SetSidebarOpen(ctx context.Context, open bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Set(ctx, KeySidebarOpen, strconv.FormatBool(open)); err != nil {
		return err
	}
	p.sidebarOpen = open
	return nil
}

// ToggleSidebar flips the sidebar and returns the new visibility.
func (p *Preferences) ToggleSidebar(ctx context.Context) (bool, error) {
	open := !p.SidebarOpen()
	if err := p.SetSidebarOpen(ctx, open); err != nil {
		return !open, err
	}
	return open, nil
}
