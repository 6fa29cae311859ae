package services

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/iniconf"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/util"
)

// HostTag marks where the offending address sits in a failregex.
const HostTag = "<HOST>"

var (
	durationRe = regexp.MustCompile(`^(?:-1|(?:\d+(?:mo|[smhdwy])?)+)$`)
	portRe     = regexp.MustCompile(`^[\w:,-]+$`)
)

// CustomJailRequest is what the custom jail wizard collects.
type CustomJailRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	LogPath     string   `json:"logpath"`
	FailRegex   []string `json:"failregex"`
	IgnoreRegex string   `json:"ignoreregex"`
	DatePattern string   `json:"datepattern"`
	Port        string   `json:"port"`
	MaxRetry    int      `json:"maxretry"`
	FindTime    string   `json:"findtime"`
	BanTime     string   `json:"bantime"`
	Backend     string   `json:"backend"`
	Enabled     bool     `json:"enabled"`
	Overwrite   bool     `json:"overwrite"`
}

// JailParams holds the tunables EditParameters may change. Nil fields are
// left alone.
type JailParams struct {
	MaxRetry *int    `json:"maxretry,omitempty"`
	FindTime *string `json:"findtime,omitempty"`
	BanTime  *string `json:"bantime,omitempty"`
}

// DeleteResult reports the best-effort part of Delete.
type DeleteResult struct {
	Jail          string `json:"jail"`
	FilterRemoved bool   `json:"filter_removed"`
	FilterError   string `json:"filter_error,omitempty"`
}

// JailService creates, edits and deletes jail.d and filter.d artifacts. It
// never reloads the engine; callers do that once they are done.
type JailService struct {
	jailDir   string
	filterDir string
	backups   *BackupService
	templates []models.JailTemplate
}

func NewJailService(cfg config.Config, backups *BackupService) *JailService {
	return &JailService{
		jailDir:   cfg.JailDir,
		filterDir: cfg.FilterDir,
		backups:   backups,
		templates: BuiltinTemplates,
	}
}

func (s *JailService) jailPath(name string) string   { return filepath.Join(s.jailDir, name+".conf") }
func (s *JailService) filterPath(name string) string { return filepath.Join(s.filterDir, name+".conf") }

// Templates returns the catalogue grouped by category.
func (s *JailService) Templates() map[string][]models.JailTemplate {
	return TemplatesByCategory(s.templates)
}

// Template looks up one catalogue entry.
func (s *JailService) Template(id string) (models.JailTemplate, error) {
	for _, t := range s.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return models.JailTemplate{}, apperr.NotFound("jail template", id)
}

// CreateFromTemplate instantiates template id under name (the template id
// when name is empty).
func (s *JailService) CreateFromTemplate(id, name string, overwrite bool) (models.JailDefinition, error) {
	t, err := s.Template(id)
	if err != nil {
		return models.JailDefinition{}, err
	}
	if name == "" {
		name = t.ID
	}
	filter, jail := t.Filter, t.Jail
	filter.Name, jail.Name, jail.Filter = name, name, name
	if err := validateDefinitions(filter, jail); err != nil {
		return models.JailDefinition{}, err
	}
	return jail, s.create(filter, jail, overwrite)
}

// CreateCustom writes a jail and its filter from operator input.
func (s *JailService) CreateCustom(req CustomJailRequest) (models.JailDefinition, error) {
	filter := models.FilterDefinition{
		Name:        req.Name,
		FailRegex:   req.FailRegex,
		IgnoreRegex: req.IgnoreRegex,
		DatePattern: req.DatePattern,
		Description: req.Description,
	}
	jail := models.JailDefinition{
		Name:     req.Name,
		Enabled:  req.Enabled,
		Port:     req.Port,
		Filter:   req.Name,
		LogPath:  req.LogPath,
		MaxRetry: req.MaxRetry,
		FindTime: req.FindTime,
		BanTime:  req.BanTime,
		Backend:  req.Backend,
	}
	if jail.MaxRetry == 0 {
		jail.MaxRetry = 5
	}
	if err := validateDefinitions(filter, jail); err != nil {
		return models.JailDefinition{}, err
	}
	return jail, s.create(filter, jail, req.Overwrite)
}

func singleLine(field, v string) error {
	if strings.ContainsAny(v, "\r\n") {
		return apperr.Validation("%s must be a single line", field)
	}
	return nil
}

func validateParams(maxRetry int, findTime, banTime string) error {
	if maxRetry < 1 {
		return apperr.Validation("maxretry must be at least 1")
	}
	if findTime != "" && !durationRe.MatchString(findTime) {
		return apperr.Validation("invalid findtime %q", util.SanitizeForLog(findTime))
	}
	if banTime != "" && !durationRe.MatchString(banTime) {
		return apperr.Validation("invalid bantime %q", util.SanitizeForLog(banTime))
	}
	return nil
}

func validateDefinitions(f models.FilterDefinition, j models.JailDefinition) error {
	if err := validateName("jail", j.Name); err != nil {
		return err
	}
	if f.Name != j.Name || j.Filter != j.Name {
		return apperr.Validation("filter name must equal jail name %q", j.Name)
	}
	if len(f.FailRegex) == 0 {
		return apperr.Validation("at least one failregex is required")
	}
	for _, re := range f.FailRegex {
		if err := singleLine("failregex", re); err != nil {
			return err
		}
		if !strings.Contains(re, HostTag) {
			return apperr.Validation("failregex %q must capture the address with %s", util.SanitizeForLog(re), HostTag)
		}
	}
	for field, v := range map[string]string{
		"ignoreregex": f.IgnoreRegex,
		"datepattern": f.DatePattern,
		"description": f.Description,
		"logpath":     j.LogPath,
		"backend":     j.Backend,
		"action":      j.Action,
	} {
		if err := singleLine(field, v); err != nil {
			return err
		}
	}
	if strings.TrimSpace(j.LogPath) == "" {
		return apperr.Validation("logpath is required")
	}
	if j.Port != "" && !portRe.MatchString(j.Port) {
		return apperr.Validation("invalid port %q", util.SanitizeForLog(j.Port))
	}
	return validateParams(j.MaxRetry, j.FindTime, j.BanTime)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ManagedMarker is the header line every artifact this package renders carries.
const ManagedMarker = "# Managed by jailkeeper."

// managedArtifact reports whether path exists and, if so, whether its header
// carries ManagedMarker. Only the leading comment block is inspected.
func managedArtifact(path string) (found, managed bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, false, nil
		}
		return false, false, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			break
		}
		if t == ManagedMarker {
			return true, true, nil
		}
	}
	return true, false, nil
}

// create writes the filter artifact, then the jail artifact. When the filter
// cannot be written the jail artifact is left untouched.
func (s *JailService) create(f models.FilterDefinition, j models.JailDefinition, overwrite bool) error {
	jailPath, filterPath := s.jailPath(j.Name), s.filterPath(f.Name)
	found, managed, err := managedArtifact(filterPath)
	if err != nil {
		return apperr.Storage("read filter artifact", err)
	}
	if found && !managed {
		return apperr.Validation("filter %s exists and is not managed by jailkeeper; choose another name", f.Name)
	}
	if !overwrite {
		if exists(jailPath) {
			return apperr.Conflict("jail %s already exists", j.Name)
		}
		if found {
			return apperr.Conflict("filter %s already exists", f.Name)
		}
	}

	filterText, err := RenderFilter(f)
	if err != nil {
		return apperr.Validation("render filter: %v", err)
	}
	jailText, err := RenderJail(j)
	if err != nil {
		return apperr.Validation("render jail: %v", err)
	}

	if err := s.writeArtifact(filterPath, filterText); err != nil {
		return err
	}
	if err := s.writeArtifact(jailPath, jailText); err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{"jail": j.Name, "enabled": j.Enabled}).Info("jail created")
	return nil
}

func (s *JailService) writeArtifact(path, content string) error {
	if s.backups != nil && exists(path) {
		if _, err := s.backups.Snapshot(path); err != nil {
			return err
		}
	}
	return apperr.Storage("write "+filepath.Base(path), util.AtomicWriteFile(path, []byte(content), 0o644))
}

func (s *JailService) readJail(name string) (string, error) {
	if err := validateName("jail", name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.jailPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.NotFound("jail", name)
		}
		return "", apperr.Storage("read jail artifact", err)
	}
	return string(data), nil
}

// SetEnabled rewrites the enabled key of the jail. When the artifact has no
// enabled key nothing is written and changed is false.
func (s *JailService) SetEnabled(name string, enabled bool) (bool, error) {
	content, err := s.readJail(name)
	if err != nil {
		return false, err
	}
	want := strconv.FormatBool(enabled)
	if cur, ok := iniconf.Get(content, name, "enabled"); ok && cur == want {
		return false, nil
	}
	updated, ok := iniconf.Replace(content, name, "enabled", want)
	if !ok {
		return false, nil
	}
	if err := s.writeArtifact(s.jailPath(name), updated); err != nil {
		return false, err
	}
	logger.WithFields(map[string]interface{}{"jail": name, "enabled": enabled}).Info("jail toggled")
	return true, nil
}

// EditParameters rewrites maxretry, findtime and bantime in place. Keys the
// artifact lacks are added to the jail's section.
func (s *JailService) EditParameters(name string, p JailParams) error {
	if p.MaxRetry == nil && p.FindTime == nil && p.BanTime == nil {
		return apperr.Validation("no parameters to change")
	}
	maxRetry, findTime, banTime := 1, "", ""
	if p.MaxRetry != nil {
		maxRetry = *p.MaxRetry
	}
	if p.FindTime != nil {
		if findTime = *p.FindTime; findTime == "" {
			return apperr.Validation("findtime must not be empty")
		}
	}
	if p.BanTime != nil {
		if banTime = *p.BanTime; banTime == "" {
			return apperr.Validation("bantime must not be empty")
		}
	}
	if err := validateParams(maxRetry, findTime, banTime); err != nil {
		return err
	}

	content, err := s.readJail(name)
	if err != nil {
		return err
	}
	updated := content
	if p.MaxRetry != nil {
		updated = iniconf.Set(updated, name, "maxretry", strconv.Itoa(maxRetry))
	}
	if p.FindTime != nil {
		updated = iniconf.Set(updated, name, "findtime", findTime)
	}
	if p.BanTime != nil {
		updated = iniconf.Set(updated, name, "bantime", banTime)
	}
	if updated == content {
		return nil
	}
	return s.writeArtifact(s.jailPath(name), updated)
}

// Delete removes the jail artifact and then, best effort, its filter. A filter
// without ManagedMarker in its header is left in place and reported.
func (s *JailService) Delete(name string) (DeleteResult, error) {
	res := DeleteResult{Jail: name}
	if _, err := s.readJail(name); err != nil {
		return res, err
	}
	jailPath := s.jailPath(name)
	if s.backups != nil {
		if _, err := s.backups.Snapshot(jailPath); err != nil {
			return res, err
		}
	}
	if err := os.Remove(jailPath); err != nil {
		return res, apperr.Storage("remove jail artifact", err)
	}

	filterPath := s.filterPath(name)
	found, managed, err := managedArtifact(filterPath)
	switch {
	case err != nil:
		res.FilterError = err.Error()
	case found && !managed:
		res.FilterError = "filter " + name + " is not managed by jailkeeper; left in place"
	case found && s.backups != nil:
		if _, err := s.backups.Snapshot(filterPath); err != nil {
			res.FilterError = err.Error()
		}
	}
	if found && res.FilterError == "" {
		switch err := os.Remove(filterPath); {
		case err == nil:
			res.FilterRemoved = true
		case errors.Is(err, os.ErrNotExist):
		default:
			res.FilterError = err.Error()
		}
	}
	if res.FilterError != "" {
		logger.WithFields(map[string]interface{}{"jail": name, "error": res.FilterError}).Warn("filter artifact not removed")
	}
	logger.WithFields(map[string]interface{}{"jail": name}).Info("jail deleted")
	return res, nil
}

// ParseJailArtifact reads the section named name back into a definition.
func ParseJailArtifact(name, content string) (models.JailDefinition, bool) {
	for _, sec := range iniconf.Parse(content) {
		if sec.Name != name {
			continue
		}
		v := sec.Values
		j := models.JailDefinition{
			Name:     name,
			Port:     v["port"],
			Filter:   v["filter"],
			LogPath:  v["logpath"],
			FindTime: v["findtime"],
			BanTime:  v["bantime"],
			Backend:  v["backend"],
			Action:   v["action"],
		}
		j.Enabled, _ = strconv.ParseBool(v["enabled"])
		j.MaxRetry, _ = strconv.Atoi(v["maxretry"])
		if j.Filter == "" {
			j.Filter = name
		}
		return j, true
	}
	return models.JailDefinition{}, false
}

// ParseFilterArtifact reads the [Definition] section of a filter artifact.
func ParseFilterArtifact(name, content string) models.FilterDefinition {
	f := models.FilterDefinition{Name: name}
	for _, sec := range iniconf.Parse(content) {
		if !strings.EqualFold(sec.Name, "Definition") {
			continue
		}
		for _, re := range strings.Split(sec.Values["failregex"], "\n") {
			if re = strings.TrimSpace(re); re != "" {
				f.FailRegex = append(f.FailRegex, re)
			}
		}
		f.IgnoreRegex = sec.Values["ignoreregex"]
		f.DatePattern = sec.Values["datepattern"]
	}
	return f
}

// Get returns the definition of one managed jail.
func (s *JailService) Get(name string) (models.JailDefinition, error) {
	content, err := s.readJail(name)
	if err != nil {
		return models.JailDefinition{}, err
	}
	j, ok := ParseJailArtifact(name, content)
	if !ok {
		return models.JailDefinition{}, apperr.NotFound("jail section", name)
	}
	return j, nil
}

// GetFilter returns the filter artifact of a jail.
func (s *JailService) GetFilter(name string) (models.FilterDefinition, error) {
	if err := validateName("filter", name); err != nil {
		return models.FilterDefinition{}, err
	}
	data, err := os.ReadFile(s.filterPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.FilterDefinition{}, apperr.NotFound("filter", name)
		}
		return models.FilterDefinition{}, apperr.Storage("read filter artifact", err)
	}
	return ParseFilterArtifact(name, string(data)), nil
}

// List parses every jail.d artifact whose section matches its file name.
func (s *JailService) List() ([]models.JailDefinition, error) {
	entries, err := os.ReadDir(s.jailDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.JailDefinition{}, nil
		}
		return nil, apperr.Storage("list jail artifacts", err)
	}
	out := []models.JailDefinition{}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".conf")
		if e.IsDir() || name == e.Name() || !util.IsSafeName(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.jailDir, e.Name()))
		if err != nil {
			return nil, apperr.Storage("read jail artifact", err)
		}
		if j, ok := ParseJailArtifact(name, string(data)); ok {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}
