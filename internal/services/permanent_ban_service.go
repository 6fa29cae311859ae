package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/ipaddr"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/metrics"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/util"
)

// ApplyFailure is one jail/address pair the engine refused.
type ApplyFailure struct {
	Value string `json:"ip"`
	Jail  string `json:"jail"`
	Error string `json:"error"`
}

// ApplyResult summarises an Apply run. Applied counts declarations whose
// every ban command succeeded.
type ApplyResult struct {
	Applied  int            `json:"applied"`
	Failed   int            `json:"failed"`
	Commands int            `json:"commands"`
	Failures []ApplyFailure `json:"failures"`
}

// PermanentBanService stores permanent ban declarations and pushes them to
// the engine on request.
type PermanentBanService struct {
	path   string
	client engine.Client
	now    func() time.Time
}

func NewPermanentBanService(path string, client engine.Client) *PermanentBanService {
	return &PermanentBanService{path: path, client: client, now: time.Now}
}

func (s *PermanentBanService) load() (models.PermanentBanFile, error) {
	var f models.PermanentBanFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		f.Bans = []models.PermanentBan{}
		return f, nil
	}
	if err != nil {
		return f, apperr.Storage("read permanent bans", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, apperr.Storage("decode permanent bans", err)
	}
	if f.Bans == nil {
		f.Bans = []models.PermanentBan{}
	}
	return f, nil
}

func (s *PermanentBanService) save(f models.PermanentBanFile) error {
	return apperr.Storage("write permanent bans", util.WriteJSONAtomic(s.path, f))
}

// List returns the declarations in the order they were added.
func (s *PermanentBanService) List() ([]models.PermanentBan, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	return f.Bans, nil
}

// Add declares a permanent ban. The value must be an address or range and a
// jail scope must name a currently active jail. Nothing is sent to the engine.
func (s *PermanentBanService) Add(ctx context.Context, value string, scope models.BanScope, reason string) (models.PermanentBan, error) {
	value = ipaddr.Normalize(value)
	if !ipaddr.IsIPOrCIDR(value) {
		return models.PermanentBan{}, apperr.Validation("invalid IP address or range %q", util.SanitizeForLog(value))
	}
	switch scope.Kind {
	case models.ScopeAll:
	case models.ScopeJail:
		if err := s.requireActiveJail(ctx, scope.Jail); err != nil {
			return models.PermanentBan{}, err
		}
	default:
		panic(fmt.Sprintf("unknown ban scope kind %d", scope.Kind))
	}

	f, err := s.load()
	if err != nil {
		return models.PermanentBan{}, err
	}
	for _, b := range f.Bans {
		if b.Value == value && b.Scope == scope {
			return models.PermanentBan{}, apperr.Validation("%s is already permanently banned in %s", value, scope)
		}
	}

	ban := models.PermanentBan{
		ID:      uuid.New().String(),
		Value:   value,
		Scope:   scope,
		Reason:  reason,
		AddedAt: s.now().UTC(),
	}
	f.Bans = append(f.Bans, ban)
	if err := s.save(f); err != nil {
		return models.PermanentBan{}, err
	}
	logger.WithFields(map[string]interface{}{"ip": value, "scope": scope.String()}).Info("permanent ban declared")
	return ban, nil
}

func (s *PermanentBanService) requireActiveJail(ctx context.Context, jail string) error {
	if !util.IsSafeName(jail) {
		return apperr.Validation("invalid jail name %q", util.SanitizeForLog(jail))
	}
	active, err := s.client.ActiveJails(ctx)
	if err != nil {
		return err
	}
	for _, j := range active {
		if j == jail {
			return nil
		}
	}
	return apperr.NotFound("active jail", jail)
}

// Remove deletes a declaration by id, or by value when idOrValue is an
// address. Removing by value drops every scope declared for it. The engine
// keeps any ban already applied.
func (s *PermanentBanService) Remove(idOrValue string) (int, error) {
	f, err := s.load()
	if err != nil {
		return 0, err
	}
	key := ipaddr.Normalize(idOrValue)
	kept := make([]models.PermanentBan, 0, len(f.Bans))
	for _, b := range f.Bans {
		if b.ID == key || b.Value == key {
			continue
		}
		kept = append(kept, b)
	}
	removed := len(f.Bans) - len(kept)
	if removed == 0 {
		return 0, apperr.NotFound("permanent ban", idOrValue)
	}
	f.Bans = kept
	if err := s.save(f); err != nil {
		return 0, err
	}
	return removed, nil
}

// Apply issues one ban command per declaration and target jail. A failing
// pair is recorded and the remaining pairs are still attempted.
func (s *PermanentBanService) Apply(ctx context.Context) (ApplyResult, error) {
	res := ApplyResult{Failures: []ApplyFailure{}}
	f, err := s.load()
	if err != nil {
		return res, err
	}
	if len(f.Bans) == 0 {
		return res, nil
	}

	var active []string
	for _, b := range f.Bans {
		if b.Scope.Kind == models.ScopeAll {
			if active, err = s.client.ActiveJails(ctx); err != nil {
				return res, err
			}
			break
		}
	}

	for _, b := range f.Bans {
		var targets []string
		switch b.Scope.Kind {
		case models.ScopeAll:
			targets = active
		case models.ScopeJail:
			targets = []string{b.Scope.Jail}
		default:
			panic(fmt.Sprintf("unknown ban scope kind %d", b.Scope.Kind))
		}

		ok := len(targets) > 0
		for _, jail := range targets {
			res.Commands++
			err := s.client.Ban(ctx, jail, b.Value)
			metrics.IncPermanentBan(err == nil)
			if err != nil {
				ok = false
				res.Failures = append(res.Failures, ApplyFailure{Value: b.Value, Jail: jail, Error: err.Error()})
				logger.WithFields(map[string]interface{}{"ip": b.Value, "jail": jail, "error": err.Error()}).Warn("permanent ban not applied")
			}
		}
		if ok {
			res.Applied++
		} else {
			res.Failed++
		}
	}

	logger.WithFields(map[string]interface{}{
		"applied":  res.Applied,
		"failed":   res.Failed,
		"commands": res.Commands,
	}).Info("permanent bans applied")
	return res, nil
}
