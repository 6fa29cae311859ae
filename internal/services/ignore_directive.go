package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/iniconf"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/metrics"
	"github.com/Wikid82/jailkeeper/internal/util"
)

const (
	ignoreKey      = "ignoreip"
	defaultSection = "DEFAULT"
)

// LoopbackAddresses are always part of the ignore directive.
var LoopbackAddresses = []string{"127.0.0.1", "::1"}

// IgnoreDirectiveResult reports one regeneration.
type IgnoreDirectiveResult struct {
	Path    string   `json:"path"`
	Section string   `json:"section"`
	Entries []string `json:"entries"`
	Changed bool     `json:"changed"`
	Backup  string   `json:"backup,omitempty"`
}

// IgnoreDirectiveService merges whitelist declarations into the engine's
// ignoreip directive. It writes files only and never reloads the engine.
type IgnoreDirectiveService struct {
	whitelist *WhitelistService
	backups   *BackupService
	jailLocal string
	jailDir   string
}

func NewIgnoreDirectiveService(cfg config.Config, whitelist *WhitelistService, backups *BackupService) *IgnoreDirectiveService {
	return &IgnoreDirectiveService{
		whitelist: whitelist,
		backups:   backups,
		jailLocal: cfg.JailLocalPath,
		jailDir:   cfg.JailDir,
	}
}

// BuildIgnoreSet dedupes values together with the loopback addresses and
// sorts them lexicographically. Addresses covered by a listed range are kept.
func BuildIgnoreSet(values []string) []string {
	set := make(map[string]struct{}, len(values)+len(LoopbackAddresses))
	for _, v := range LoopbackAddresses {
		set[v] = struct{}{}
	}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// GlobalSet is the ignore set for the default scope.
func (s *IgnoreDirectiveService) GlobalSet() ([]string, error) {
	f, err := s.whitelist.Load()
	if err != nil {
		return nil, err
	}
	return BuildIgnoreSet(GlobalValues(f)), nil
}

func (s *IgnoreDirectiveService) jailSet(jail string) ([]string, error) {
	f, err := s.whitelist.Load()
	if err != nil {
		return nil, err
	}
	return BuildIgnoreSet(append(GlobalValues(f), JailValues(f, jail)...)), nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperr.Storage("read "+filepath.Base(path), err)
	}
	return string(data), nil
}

// Regenerate rewrites the ignoreip line in the [DEFAULT] section of jail.local.
// Running it twice on unchanged declarations leaves the file byte-identical.
func (s *IgnoreDirectiveService) Regenerate() (IgnoreDirectiveResult, error) {
	entries, err := s.GlobalSet()
	if err != nil {
		return IgnoreDirectiveResult{}, err
	}
	current, err := readOptional(s.jailLocal)
	if err != nil {
		return IgnoreDirectiveResult{}, err
	}
	return s.write(s.jailLocal, current, defaultSection, entries)
}

// RegenerateForJail writes the global set plus the jail's own entries into
// the jail's artifact under jail.d.
func (s *IgnoreDirectiveService) RegenerateForJail(jail string) (IgnoreDirectiveResult, error) {
	if err := validateName("jail", jail); err != nil {
		return IgnoreDirectiveResult{}, err
	}
	path := filepath.Join(s.jailDir, jail+".conf")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return IgnoreDirectiveResult{}, apperr.NotFound("jail", jail)
		}
		return IgnoreDirectiveResult{}, apperr.Storage("read jail artifact", err)
	}
	entries, err := s.jailSet(jail)
	if err != nil {
		return IgnoreDirectiveResult{}, err
	}
	return s.write(path, string(data), jail, entries)
}

func (s *IgnoreDirectiveService) write(path, current, section string, entries []string) (IgnoreDirectiveResult, error) {
	res := IgnoreDirectiveResult{Path: path, Section: section, Entries: entries}
	updated := iniconf.Set(current, section, ignoreKey, strings.Join(entries, " "))
	if updated == current {
		return res, nil
	}

	if s.backups != nil {
		name, err := s.backups.Snapshot(path)
		if err != nil {
			return res, err
		}
		res.Backup = name
	}
	if err := util.AtomicWriteFile(path, []byte(updated), 0o644); err != nil {
		return res, apperr.Storage("write ignore directive", err)
	}
	res.Changed = true
	metrics.IncIgnoreDirectiveWrite()
	logger.WithFields(map[string]interface{}{
		"path":    path,
		"section": section,
		"entries": len(entries),
	}).Info("ignore directive regenerated")
	return res, nil
}

// Preview returns the unified diff Regenerate would apply, or an empty string
// when jail.local is already current.
func (s *IgnoreDirectiveService) Preview() (string, error) {
	entries, err := s.GlobalSet()
	if err != nil {
		return "", err
	}
	current, err := readOptional(s.jailLocal)
	if err != nil {
		return "", err
	}
	updated := iniconf.Set(current, defaultSection, ignoreKey, strings.Join(entries, " "))
	if updated == current {
		return "", nil
	}
	edits := myers.ComputeEdits(span.URIFromPath(s.jailLocal), current, updated)
	return fmt.Sprint(gotextdiff.ToUnified(s.jailLocal, s.jailLocal+" (regenerated)", current, edits)), nil
}
