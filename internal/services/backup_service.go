package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/util"
)

// Artifact kinds a backup can be restored to.
const (
	BackupDefault = "default"
	BackupJail    = "jail"
	BackupFilter  = "filter"
)

const (
	backupStampLayout = "20060102-150405.000000000"
	backupSep         = "__"
)

// BackupFile describes one stored copy of a config artifact.
type BackupFile struct {
	Filename  string    `json:"filename"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupService keeps timestamped copies of the engine config artifacts this
// module writes. Backup names are "<stamp>__<kind>__<basename>".
type BackupService struct {
	cfg       config.Config
	BackupDir string
	now       func() time.Time
}

func NewBackupService(cfg config.Config) *BackupService {
	return &BackupService{cfg: cfg, BackupDir: cfg.BackupDir, now: time.Now}
}

func (s *BackupService) kindOf(path string) (string, error) {
	clean := filepath.Clean(path)
	switch {
	case clean == filepath.Clean(s.cfg.JailLocalPath):
		return BackupDefault, nil
	case filepath.Dir(clean) == filepath.Clean(s.cfg.JailDir):
		return BackupJail, nil
	case filepath.Dir(clean) == filepath.Clean(s.cfg.FilterDir):
		return BackupFilter, nil
	}
	return "", apperr.Validation("%s is not a managed config artifact", path)
}

func (s *BackupService) targetOf(kind, base string) (string, error) {
	switch kind {
	case BackupDefault:
		return s.cfg.JailLocalPath, nil
	case BackupJail:
		return filepath.Join(s.cfg.JailDir, base), nil
	case BackupFilter:
		return filepath.Join(s.cfg.FilterDir, base), nil
	}
	return "", apperr.Validation("unknown backup kind %q", kind)
}

// Snapshot copies the current content of path into the backup directory.
// A missing file has nothing to back up and yields an empty name.
func (s *BackupService) Snapshot(path string) (string, error) {
	kind, err := s.kindOf(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperr.Storage("read artifact for backup", err)
	}
	name := strings.Join([]string{s.now().Format(backupStampLayout), kind, filepath.Base(path)}, backupSep)
	if err := util.AtomicWriteFile(filepath.Join(s.BackupDir, name), data, 0o644); err != nil {
		return "", apperr.Storage("write backup", err)
	}
	logger.WithFields(map[string]interface{}{"backup": name, "target": path}).Debug("config artifact backed up")
	return name, nil
}

func (s *BackupService) parse(name string) (BackupFile, bool) {
	parts := strings.SplitN(name, backupSep, 3)
	if len(parts) != 3 {
		return BackupFile{}, false
	}
	ts, err := time.ParseInLocation(backupStampLayout, parts[0], time.Local)
	if err != nil {
		return BackupFile{}, false
	}
	target, err := s.targetOf(parts[1], parts[2])
	if err != nil {
		return BackupFile{}, false
	}
	return BackupFile{Filename: name, Kind: parts[1], Target: target, CreatedAt: ts}, true
}

// List returns stored backups, newest first.
func (s *BackupService) List() ([]BackupFile, error) {
	entries, err := os.ReadDir(s.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupFile{}, nil
		}
		return nil, apperr.Storage("list backups", err)
	}
	out := []BackupFile{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, ok := s.parse(e.Name())
		if !ok {
			continue
		}
		if info, err := e.Info(); err == nil {
			b.Size = info.Size()
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Filename > out[j].Filename })
	return out, nil
}

// GetBackupPath resolves name inside the backup directory, rejecting anything
// that would escape it.
func (s *BackupService) GetBackupPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", apperr.Validation("invalid backup name %q", util.SanitizeForLog(name))
	}
	if _, ok := s.parse(name); !ok {
		return "", apperr.Validation("invalid backup name %q", util.SanitizeForLog(name))
	}
	return filepath.Join(s.BackupDir, name), nil
}

// Restore writes the backup back over its original artifact. The artifact's
// current content is itself backed up first.
func (s *BackupService) Restore(name string) error {
	path, err := s.GetBackupPath(name)
	if err != nil {
		return err
	}
	b, _ := s.parse(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.NotFound("backup", name)
		}
		return apperr.Storage("read backup", err)
	}
	if _, err := s.Snapshot(b.Target); err != nil {
		return err
	}
	if err := util.AtomicWriteFile(b.Target, data, 0o644); err != nil {
		return apperr.Storage("restore backup", err)
	}
	logger.WithFields(map[string]interface{}{"backup": name, "target": b.Target}).Info("config artifact restored")
	return nil
}

// Delete removes one backup.
func (s *BackupService) Delete(name string) error {
	path, err := s.GetBackupPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.NotFound("backup", name)
		}
		return apperr.Storage(fmt.Sprintf("delete backup %s", name), err)
	}
	return nil
}
