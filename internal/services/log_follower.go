package services

import (
	"context"
	"fmt"
	"io"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/logparse"
	"github.com/Wikid82/jailkeeper/internal/models"
)

// LineHandler receives every followed line. ev is nil when the line is not a
// ban or unban.
type LineHandler func(line string, ev *models.BanEvent)

// LogFollower streams new lines of the security log as they are written.
type LogFollower struct {
	path    string
	history *HistoryService
	// Record appends recognised events to the history.
	Record bool
	// Poll uses stat polling instead of inotify, for filesystems without it.
	Poll bool
}

func NewLogFollower(path string, history *HistoryService) *LogFollower {
	return &LogFollower{path: path, history: history}
}

// Follow starts at the current end of the log, survives rotation and returns
// once ctx is cancelled. Calling it again starts from the then current end.
func (f *LogFollower) Follow(ctx context.Context, fn LineHandler) error {
	t, err := tail.TailFile(f.path, tail.Config{
		ReOpen:   true,
		Follow:   true,
		Poll:     f.Poll,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   logger.Log().WithField("tail", f.path),
	})
	if err != nil {
		return fmt.Errorf("could not start tailing file %s: %w", f.path, err)
	}
	defer t.Cleanup()

	log := logger.WithFields(logrus.Fields{"tail": f.path})
	log.Debug("following security log")

	for {
		select {
		case <-ctx.Done():
			if err := t.Stop(); err != nil {
				log.WithError(err).Warn("error stopping tail")
			}
			return nil
		case <-t.Dying():
			return t.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				log.WithError(line.Err).Warn("fetch error")
				continue
			}
			f.handle(line.Text, fn)
		}
	}
}

func (f *LogFollower) handle(text string, fn LineHandler) {
	ev, ok := logparse.Parse(text)
	if !ok {
		fn(text, nil)
		return
	}
	if f.Record && f.history != nil {
		if err := f.history.Append(&ev); err != nil {
			logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("failed to record followed event")
		}
	}
	fn(text, &ev)
}
