package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// WhitelistEntry is either a bare value or a value annotated with a
// description and the time it was added. The two shapes share one type and
// are told apart with Annotated.
type WhitelistEntry struct {
	Value       string
	Description string
	AddedAt     time.Time
	annotated   bool
}

// Inline builds an entry that serialises as a bare string.
func Inline(value string) WhitelistEntry {
	return WhitelistEntry{Value: value}
}

// Annotated builds an entry that serialises as an object.
func Annotated(value, description string, addedAt time.Time) WhitelistEntry {
	return WhitelistEntry{Value: value, Description: description, AddedAt: addedAt, annotated: true}
}

// IsAnnotated reports which variant the entry is.
func (e WhitelistEntry) IsAnnotated() bool { return e.annotated }

type annotatedEntry struct {
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

func (e WhitelistEntry) MarshalJSON() ([]byte, error) {
	if !e.annotated {
		return json.Marshal(e.Value)
	}
	return json.Marshal(annotatedEntry{Value: e.Value, Description: e.Description, AddedAt: e.AddedAt})
}

func (e *WhitelistEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Inline(v)
		return nil
	}
	var a annotatedEntry
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("whitelist entry must be a string or an object: %w", err)
	}
	*e = Annotated(a.Value, a.Description, a.AddedAt)
	return nil
}

// WhitelistScope holds the entries declared at one scope, global or per jail.
type WhitelistScope struct {
	IPs    []WhitelistEntry `json:"ips"`
	CIDRs  []WhitelistEntry `json:"cidrs"`
	Groups []string         `json:"groups"`
}

// Values returns the raw values of every IP and CIDR entry in declaration order.
func (s WhitelistScope) Values() []string {
	out := make([]string, 0, len(s.IPs)+len(s.CIDRs))
	for _, e := range s.IPs {
		out = append(out, e.Value)
	}
	for _, e := range s.CIDRs {
		out = append(out, e.Value)
	}
	return out
}

// IPGroup is a named, reusable set of whitelist entries.
type IPGroup struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Entries     []WhitelistEntry `json:"entries"`
}

// TrustedSource is an external feed of address ranges merged into the
// whitelist while enabled. Entries caches the last successful fetch.
type TrustedSource struct {
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	SourceURL  string     `json:"source_url"`
	Enabled    bool       `json:"enabled"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
	Entries    []string   `json:"entries,omitempty"`
}

// WhitelistFile is the persisted document for every whitelist declaration.
type WhitelistFile struct {
	Global         WhitelistScope            `json:"global"`
	Jails          map[string]WhitelistScope `json:"jails"`
	Groups         map[string]IPGroup        `json:"groups"`
	TrustedSources map[string]TrustedSource  `json:"trusted_sources"`
}

// Normalize replaces nil maps so callers can write into a freshly decoded file.
func (f *WhitelistFile) Normalize() {
	if f.Jails == nil {
		f.Jails = map[string]WhitelistScope{}
	}
	if f.Groups == nil {
		f.Groups = map[string]IPGroup{}
	}
	if f.TrustedSources == nil {
		f.TrustedSources = map[string]TrustedSource{}
	}
}
