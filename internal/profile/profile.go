// Package profile persists named account profiles in a JSON document.
//
// The whole document is rewritten on every mutation. There is no locking;
// concurrent writers race and the last one wins.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fenilsonani/mailbridge/internal/logging"
)

// ErrProfileNotFound is returned for operations on an unknown profile name.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named server and credential bundle for one account.
type Profile struct {
	Name       string `json:"name"`
	IMAPServer string `json:"imap_server"`
	SMTPServer string `json:"smtp_server"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	IMAPPort   int    `json:"imap_port"`
	SMTPPort   int    `json:"smtp_port"`
	IMAPSSL    bool   `json:"imap_ssl"`
	SMTPTLS    bool   `json:"smtp_tls"`
}

// New returns a profile with the standard ports and encryption enabled.
func New(name string) Profile {
	return Profile{
		Name:     name,
		IMAPPort: 993,
		SMTPPort: 587,
		IMAPSSL:  true,
		SMTPTLS:  true,
	}
}

// Masked returns a copy safe to print.
func (p Profile) Masked() Profile {
	if p.Password != "" {
		p.Password = "***"
	}
	return p
}

// UnmarshalJSON fills missing ports and flags with their defaults.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	v := plain(New(""))
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Profile(v)
	return nil
}

type document struct {
	Profiles       map[string]Profile `json:"profiles"`
	DefaultProfile *string            `json:"default_profile"`
}

// Manager loads and saves the profile document at one path.
type Manager struct {
	path        string
	profiles    map[string]Profile
	defaultName string
	logger      *logging.Logger
}

// NewManager loads the document at path. A missing or unreadable document
// yields an empty manager; the failure is logged.
func NewManager(path string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &Manager{
		path:     path,
		profiles: make(map[string]Profile),
		logger:   logger.Profile(),
	}
	if err := m.load(); err != nil {
		m.logger.Warn("Failed to load profiles", "path", path, "error", err)
		m.profiles = make(map[string]Profile)
		m.defaultName = ""
	}
	return m
}

// Path returns the document location.
func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", m.path, err)
	}

	for name, p := range doc.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		m.profiles[name] = p
	}
	if doc.DefaultProfile != nil {
		m.defaultName = *doc.DefaultProfile
	}
	return nil
}

func (m *Manager) save() error {
	doc := document{Profiles: m.profiles}
	if m.defaultName != "" {
		name := m.defaultName
		doc.DefaultProfile = &name
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		m.logger.Error("Failed to save profiles", "path", m.path, "error", err)
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}

// Add stores p, replacing any profile with the same name.
func (m *Manager) Add(p Profile) error {
	m.profiles[p.Name] = p
	return m.save()
}

// Get returns the named profile.
func (m *Manager) Get(name string) (Profile, bool) {
	p, ok := m.profiles[name]
	return p, ok
}

// Names returns every profile name in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.profiles))
	for name := range m.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every profile sorted by name.
func (m *Manager) List() []Profile {
	out := make([]Profile, 0, len(m.profiles))
	for _, name := range m.Names() {
		out = append(out, m.profiles[name])
	}
	return out
}

// Remove deletes the named profile. Removing the default profile clears the
// default.
func (m *Manager) Remove(name string) error {
	if _, ok := m.profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(m.profiles, name)
	if m.defaultName == name {
		m.defaultName = ""
	}
	return m.save()
}

// SetDefault makes the named profile the default.
func (m *Manager) SetDefault(name string) error {
	if _, ok := m.profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	m.defaultName = name
	return m.save()
}

// DefaultName returns the default profile name, or "".
func (m *Manager) DefaultName() string {
	return m.defaultName
}

// Default returns the default profile.
func (m *Manager) Default() (Profile, bool) {
	if m.defaultName == "" {
		return Profile{}, false
	}
	return m.Get(m.defaultName)
}

// FindByUsername returns the first profile, in name order, whose username
// matches.
func (m *Manager) FindByUsername(username string) (Profile, bool) {
	for _, name := range m.Names() {
		if p := m.profiles[name]; p.Username == username {
			return p, true
		}
	}
	return Profile{}, false
}
