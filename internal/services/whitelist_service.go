package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/ipaddr"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/util"
	"github.com/Wikid82/jailkeeper/internal/version"
)

// DefaultTrustedSources is the catalogue of feeds an operator can enable.
// All of them start disabled.
var DefaultTrustedSources = []models.TrustedSource{
	{Key: "cloudflare_v4", Name: "Cloudflare IPv4", SourceURL: "https://www.cloudflare.com/ips-v4"},
	{Key: "cloudflare_v6", Name: "Cloudflare IPv6", SourceURL: "https://www.cloudflare.com/ips-v6"},
	{Key: "uptimerobot", Name: "UptimeRobot monitors", SourceURL: "https://uptimerobot.com/inc/files/ips/IPv4andIPv6.txt"},
	{Key: "github_hooks", Name: "GitHub webhooks", SourceURL: "https://api.github.com/meta"},
}

// feedTokenRe picks address-looking tokens out of any feed body, plain text or JSON.
var feedTokenRe = regexp.MustCompile(`[0-9A-Fa-f:.]+(?:/\d{1,3})?`)

const maxFeedBytes = 4 << 20

// WhitelistMatch explains why an address is whitelisted.
type WhitelistMatch struct {
	Whitelisted bool   `json:"whitelisted"`
	Scope       string `json:"scope,omitempty"`
	Value       string `json:"value,omitempty"`
}

// WhitelistService owns the whitelist declarations file. Changes here never
// reach the engine until the ignore directive is regenerated.
type WhitelistService struct {
	path       string
	httpClient *http.Client
	now        func() time.Time
}

func NewWhitelistService(path string) *WhitelistService {
	return &WhitelistService{
		path:       path,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// Load reads the declarations. A missing file is an empty whitelist with the
// default trusted source catalogue.
func (s *WhitelistService) Load() (models.WhitelistFile, error) {
	var f models.WhitelistFile
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return f, apperr.Storage("read whitelist", err)
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return f, apperr.Storage("decode whitelist", err)
		}
	}
	f.Normalize()
	for _, src := range DefaultTrustedSources {
		if _, ok := f.TrustedSources[src.Key]; !ok {
			f.TrustedSources[src.Key] = src
		}
	}
	return f, nil
}

func (s *WhitelistService) save(f models.WhitelistFile) error {
	return apperr.Storage("write whitelist", util.WriteJSONAtomic(s.path, f))
}

// update loads, mutates and saves. fn runs all validation before touching f.
func (s *WhitelistService) update(fn func(f *models.WhitelistFile) error) error {
	f, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(&f); err != nil {
		return err
	}
	return s.save(f)
}

func (s *WhitelistService) entry(value, description string) models.WhitelistEntry {
	if description == "" {
		return models.Inline(value)
	}
	return models.Annotated(value, description, s.now().UTC())
}

func indexOf(entries []models.WhitelistEntry, value string) int {
	for i, e := range entries {
		if e.Value == value {
			return i
		}
	}
	return -1
}

func without(entries []models.WhitelistEntry, i int) []models.WhitelistEntry {
	return append(entries[:i:i], entries[i+1:]...)
}

func validateName(kind, name string) error {
	if !util.IsSafeName(name) {
		return apperr.Validation("invalid %s name %q", kind, util.SanitizeForLog(name))
	}
	return nil
}

// AddGlobalIP whitelists a single address everywhere.
func (s *WhitelistService) AddGlobalIP(ip, description string) error {
	ip = ipaddr.Normalize(ip)
	if !ipaddr.IsIP(ip) {
		return apperr.Validation("invalid IP address %q", util.SanitizeForLog(ip))
	}
	return s.update(func(f *models.WhitelistFile) error {
		if indexOf(f.Global.IPs, ip) >= 0 {
			return apperr.Validation("%s is already whitelisted", ip)
		}
		f.Global.IPs = append(f.Global.IPs, s.entry(ip, description))
		return nil
	})
}

// RemoveGlobalIP drops a global address.
func (s *WhitelistService) RemoveGlobalIP(ip string) error {
	ip = ipaddr.Normalize(ip)
	return s.update(func(f *models.WhitelistFile) error {
		i := indexOf(f.Global.IPs, ip)
		if i < 0 {
			return apperr.NotFound("whitelisted IP", ip)
		}
		f.Global.IPs = without(f.Global.IPs, i)
		return nil
	})
}

// AddGlobalCIDR whitelists a range everywhere.
func (s *WhitelistService) AddGlobalCIDR(cidr, description string) error {
	cidr = ipaddr.Normalize(cidr)
	if !ipaddr.IsCIDR(cidr) {
		return apperr.Validation("invalid CIDR range %q", util.SanitizeForLog(cidr))
	}
	return s.update(func(f *models.WhitelistFile) error {
		if indexOf(f.Global.CIDRs, cidr) >= 0 {
			return apperr.Validation("%s is already whitelisted", cidr)
		}
		f.Global.CIDRs = append(f.Global.CIDRs, s.entry(cidr, description))
		return nil
	})
}

// RemoveGlobalCIDR drops a global range.
func (s *WhitelistService) RemoveGlobalCIDR(cidr string) error {
	cidr = ipaddr.Normalize(cidr)
	return s.update(func(f *models.WhitelistFile) error {
		i := indexOf(f.Global.CIDRs, cidr)
		if i < 0 {
			return apperr.NotFound("whitelisted range", cidr)
		}
		f.Global.CIDRs = without(f.Global.CIDRs, i)
		return nil
	})
}

// AddGlobal files value under IPs or CIDRs depending on its shape.
func (s *WhitelistService) AddGlobal(value, description string) error {
	value = ipaddr.Normalize(value)
	if strings.Contains(value, "/") {
		return s.AddGlobalCIDR(value, description)
	}
	return s.AddGlobalIP(value, description)
}

// RemoveGlobal is the counterpart of AddGlobal.
func (s *WhitelistService) RemoveGlobal(value string) error {
	value = ipaddr.Normalize(value)
	if strings.Contains(value, "/") {
		return s.RemoveGlobalCIDR(value)
	}
	return s.RemoveGlobalIP(value)
}

// AddJailEntry whitelists value for one jail only.
func (s *WhitelistService) AddJailEntry(jail, value, description string) error {
	value = ipaddr.Normalize(value)
	if err := validateName("jail", jail); err != nil {
		return err
	}
	if !ipaddr.IsIPOrCIDR(value) {
		return apperr.Validation("invalid IP address or range %q", util.SanitizeForLog(value))
	}
	return s.update(func(f *models.WhitelistFile) error {
		scope := f.Jails[jail]
		if strings.Contains(value, "/") {
			if indexOf(scope.CIDRs, value) >= 0 {
				return apperr.Validation("%s is already whitelisted for %s", value, jail)
			}
			scope.CIDRs = append(scope.CIDRs, s.entry(value, description))
		} else {
			if indexOf(scope.IPs, value) >= 0 {
				return apperr.Validation("%s is already whitelisted for %s", value, jail)
			}
			scope.IPs = append(scope.IPs, s.entry(value, description))
		}
		f.Jails[jail] = scope
		return nil
	})
}

// RemoveJailEntry drops a jail-scoped value. An emptied scope is removed.
func (s *WhitelistService) RemoveJailEntry(jail, value string) error {
	value = ipaddr.Normalize(value)
	return s.update(func(f *models.WhitelistFile) error {
		scope, ok := f.Jails[jail]
		if !ok {
			return apperr.NotFound("jail whitelist", jail)
		}
		if i := indexOf(scope.IPs, value); i >= 0 {
			scope.IPs = without(scope.IPs, i)
		} else if i := indexOf(scope.CIDRs, value); i >= 0 {
			scope.CIDRs = without(scope.CIDRs, i)
		} else {
			return apperr.NotFound("whitelisted value", value)
		}
		if len(scope.IPs)+len(scope.CIDRs)+len(scope.Groups) == 0 {
			delete(f.Jails, jail)
		} else {
			f.Jails[jail] = scope
		}
		return nil
	})
}

// CreateGroup declares an empty named group.
func (s *WhitelistService) CreateGroup(name, description string) error {
	if err := validateName("group", name); err != nil {
		return err
	}
	return s.update(func(f *models.WhitelistFile) error {
		if _, ok := f.Groups[name]; ok {
			return apperr.Validation("group %s already exists", name)
		}
		f.Groups[name] = models.IPGroup{Name: name, Description: description, Entries: []models.WhitelistEntry{}}
		return nil
	})
}

// DeleteGroup removes a group and every reference to it.
func (s *WhitelistService) DeleteGroup(name string) error {
	return s.update(func(f *models.WhitelistFile) error {
		if _, ok := f.Groups[name]; !ok {
			return apperr.NotFound("group", name)
		}
		delete(f.Groups, name)
		f.Global.Groups = removeString(f.Global.Groups, name)
		for jail, scope := range f.Jails {
			scope.Groups = removeString(scope.Groups, name)
			f.Jails[jail] = scope
		}
		return nil
	})
}

// AddGroupEntry adds an address or range to a group.
func (s *WhitelistService) AddGroupEntry(group, value, description string) error {
	value = ipaddr.Normalize(value)
	if !ipaddr.IsIPOrCIDR(value) {
		return apperr.Validation("invalid IP address or range %q", util.SanitizeForLog(value))
	}
	return s.update(func(f *models.WhitelistFile) error {
		g, ok := f.Groups[group]
		if !ok {
			return apperr.NotFound("group", group)
		}
		if indexOf(g.Entries, value) >= 0 {
			return apperr.Validation("%s is already in group %s", value, group)
		}
		g.Entries = append(g.Entries, s.entry(value, description))
		f.Groups[group] = g
		return nil
	})
}

// RemoveGroupEntry drops a value from a group.
func (s *WhitelistService) RemoveGroupEntry(group, value string) error {
	value = ipaddr.Normalize(value)
	return s.update(func(f *models.WhitelistFile) error {
		g, ok := f.Groups[group]
		if !ok {
			return apperr.NotFound("group", group)
		}
		i := indexOf(g.Entries, value)
		if i < 0 {
			return apperr.NotFound("group entry", value)
		}
		g.Entries = without(g.Entries, i)
		f.Groups[group] = g
		return nil
	})
}

// AttachGroup references a group from the global scope.
func (s *WhitelistService) AttachGroup(name string) error {
	return s.update(func(f *models.WhitelistFile) error {
		if _, ok := f.Groups[name]; !ok {
			return apperr.NotFound("group", name)
		}
		for _, g := range f.Global.Groups {
			if g == name {
				return apperr.Validation("group %s is already attached", name)
			}
		}
		f.Global.Groups = append(f.Global.Groups, name)
		return nil
	})
}

// DetachGroup removes a group reference from the global scope.
func (s *WhitelistService) DetachGroup(name string) error {
	return s.update(func(f *models.WhitelistFile) error {
		before := len(f.Global.Groups)
		f.Global.Groups = removeString(f.Global.Groups, name)
		if len(f.Global.Groups) == before {
			return apperr.NotFound("attached group", name)
		}
		return nil
	})
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// TrustedSources lists every known feed sorted by key.
func (s *WhitelistService) TrustedSources() ([]models.TrustedSource, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]models.TrustedSource, 0, len(f.TrustedSources))
	for _, src := range f.TrustedSources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SetTrustedSourceEnabled toggles whether a feed's cached entries are merged.
func (s *WhitelistService) SetTrustedSourceEnabled(key string, enabled bool) error {
	return s.update(func(f *models.WhitelistFile) error {
		src, ok := f.TrustedSources[key]
		if !ok {
			return apperr.NotFound("trusted source", key)
		}
		src.Enabled = enabled
		f.TrustedSources[key] = src
		return nil
	})
}

// RefreshTrustedSource downloads a feed and replaces its cached entries. The
// cache is only replaced when the download yields at least one valid entry.
func (s *WhitelistService) RefreshTrustedSource(ctx context.Context, key string) (models.TrustedSource, error) {
	f, err := s.Load()
	if err != nil {
		return models.TrustedSource{}, err
	}
	src, ok := f.TrustedSources[key]
	if !ok {
		return models.TrustedSource{}, apperr.NotFound("trusted source", key)
	}

	entries, err := s.fetchFeed(ctx, src.SourceURL)
	if err != nil {
		return src, err
	}
	now := s.now().UTC()
	src.Entries = entries
	src.LastUpdate = &now
	f.TrustedSources[key] = src
	if err := s.save(f); err != nil {
		return src, err
	}
	logger.WithFields(map[string]interface{}{"source": key, "entries": len(entries)}).Info("trusted source refreshed")
	return src, nil
}

// RefreshEnabled refreshes every enabled feed and reports per-feed failures.
func (s *WhitelistService) RefreshEnabled(ctx context.Context) map[string]error {
	failures := map[string]error{}
	sources, err := s.TrustedSources()
	if err != nil {
		failures["*"] = err
		return failures
	}
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		if _, err := s.RefreshTrustedSource(ctx, src.Key); err != nil {
			logger.WithFields(map[string]interface{}{"source": src.Key, "error": err.Error()}).Warn("trusted source refresh failed")
			failures[src.Key] = err
		}
	}
	return failures
}

func (s *WhitelistService) fetchFeed(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Validation("invalid feed URL %q", url)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", apperr.ErrExternalCommand, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: unexpected status %d", apperr.ErrExternalCommand, url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrExternalCommand, url, err)
	}
	entries := ExtractFeedEntries(string(body))
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s returned no addresses", apperr.ErrExternalCommand, url)
	}
	return entries, nil
}

// ExtractFeedEntries returns the unique valid addresses and ranges in body,
// in order of first appearance.
func ExtractFeedEntries(body string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range feedTokenRe.FindAllString(body, -1) {
		if !ipaddr.IsIPOrCIDR(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// GlobalValues is everything that applies to every jail: global IPs and
// ranges, entries of globally attached groups, and cached entries of enabled
// trusted sources. The result is unsorted and may hold duplicates.
func GlobalValues(f models.WhitelistFile) []string {
	out := f.Global.Values()
	out = append(out, groupValues(f, f.Global.Groups)...)
	for _, src := range f.TrustedSources {
		if src.Enabled {
			out = append(out, src.Entries...)
		}
	}
	return out
}

// JailValues is what a single jail adds on top of GlobalValues.
func JailValues(f models.WhitelistFile, jail string) []string {
	scope, ok := f.Jails[jail]
	if !ok {
		return nil
	}
	return append(scope.Values(), groupValues(f, scope.Groups)...)
}

func groupValues(f models.WhitelistFile, names []string) []string {
	var out []string
	for _, name := range names {
		for _, e := range f.Groups[name].Entries {
			out = append(out, e.Value)
		}
	}
	return out
}

// IsWhitelisted checks ip against the global scope, then against jail when it
// is not empty. Ranges match by containment.
func (s *WhitelistService) IsWhitelisted(ip, jail string) (WhitelistMatch, error) {
	ip = ipaddr.Normalize(ip)
	if !ipaddr.IsIP(ip) {
		return WhitelistMatch{}, apperr.Validation("invalid IP address %q", util.SanitizeForLog(ip))
	}
	f, err := s.Load()
	if err != nil {
		return WhitelistMatch{}, err
	}
	for _, v := range append([]string{"127.0.0.1", "::1"}, GlobalValues(f)...) {
		if ipaddr.Contains(v, ip) {
			return WhitelistMatch{Whitelisted: true, Scope: "global", Value: v}, nil
		}
	}
	if jail != "" {
		for _, v := range JailValues(f, jail) {
			if ipaddr.Contains(v, ip) {
				return WhitelistMatch{Whitelisted: true, Scope: jail, Value: v}, nil
			}
		}
	}
	return WhitelistMatch{}, nil
}
