package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScopeKind distinguishes the two shapes a BanScope can take.
type ScopeKind int

const (
	// ScopeAll targets every jail active at apply time.
	ScopeAll ScopeKind = iota
	// ScopeJail targets a single named jail.
	ScopeJail
)

const scopeAllLiteral = "all"

// BanScope says which jails a permanent ban is applied to.
type BanScope struct {
	Kind ScopeKind
	Jail string
}

// AllJails is the scope covering every active jail.
func AllJails() BanScope { return BanScope{Kind: ScopeAll} }

// SingleJail is the scope covering exactly one jail.
func SingleJail(name string) BanScope { return BanScope{Kind: ScopeJail, Jail: name} }

// ParseBanScope maps the persisted literal back to a scope. An empty string
// is treated as "all".
func ParseBanScope(s string) BanScope {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, scopeAllLiteral) {
		return AllJails()
	}
	return SingleJail(s)
}

func (s BanScope) String() string {
	switch s.Kind {
	case ScopeAll:
		return scopeAllLiteral
	case ScopeJail:
		return s.Jail
	default:
		panic(fmt.Sprintf("unknown ban scope kind %d", s.Kind))
	}
}

func (s BanScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BanScope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ban scope must be a string: %w", err)
	}
	*s = ParseBanScope(raw)
	return nil
}

// PermanentBan is an operator-declared ban that the engine only learns about
// when the declarations are applied.
type PermanentBan struct {
	ID      string    `json:"id"`
	Value   string    `json:"ip"`
	Scope   BanScope  `json:"jail"`
	Reason  string    `json:"reason,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// PermanentBanFile is the on-disk document holding all declarations.
type PermanentBanFile struct {
	Bans []PermanentBan `json:"bans"`
}
