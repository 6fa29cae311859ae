// Package logparse turns raw fail2ban log lines into ban events.
//
// A typical line looks like:
//
//	2024-01-01 10:00:00,123 fail2ban.actions [812]: NOTICE  [sshd] Ban 1.2.3.4
//
// Lines that do not describe a ban or unban are dropped silently.
package logparse

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Wikid82/jailkeeper/internal/ipaddr"
	"github.com/Wikid82/jailkeeper/internal/models"
)

// TimestampLayout is the fixed prefix every recognised line starts with.
const TimestampLayout = "2006-01-02 15:04:05"

// MaxLineLength caps a single line. Longer lines are counted and skipped.
const MaxLineLength = 1 << 20

var (
	timestampRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)
	unbanIPRe    = regexp.MustCompile(`Unban\s+(\d{1,3}(?:\.\d{1,3}){3})\b`)
	banIPRe      = regexp.MustCompile(`Ban\s+(\d{1,3}(?:\.\d{1,3}){3})\b`)
	jailBeforeRe = regexp.MustCompile(`\[([^\]\s]+)\]\s+(?:Unban|Ban)\b`)
	jailTailRe   = regexp.MustCompile(`\[([^\]\s]+)\]\s*$`)
)

// Location is the time zone log timestamps are interpreted in.
var Location = time.Local

// Parse extracts a ban event from line. The boolean is false when the line is
// not a recognisable ban or unban.
func Parse(line string) (models.BanEvent, bool) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return models.BanEvent{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, m[1], Location)
	if err != nil {
		return models.BanEvent{}, false
	}

	// "Unban" contains "Ban", so it must be tested first.
	var (
		action models.BanAction
		ipRe   *regexp.Regexp
	)
	switch {
	case strings.Contains(line, "Unban"):
		action, ipRe = models.ActionUnban, unbanIPRe
	case strings.Contains(line, "Ban"):
		action, ipRe = models.ActionBan, banIPRe
	default:
		return models.BanEvent{}, false
	}

	ipm := ipRe.FindStringSubmatch(line)
	if ipm == nil || !ipaddr.IsIPv4(ipm[1]) {
		return models.BanEvent{}, false
	}

	return models.BanEvent{
		Timestamp: ts,
		IP:        ipm[1],
		Jail:      jailOf(line),
		Action:    action,
		Source:    models.SourceLog,
	}, true
}

func jailOf(line string) string {
	if m := jailBeforeRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := jailTailRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return models.UnknownJail
}

// Stats counts what ParseReader saw.
type Stats struct {
	Lines  int
	Parsed int
}

// ParseReader feeds every line of r through Parse and calls fn for each
// recognised event. It stops at the first error returned by fn. Lines longer
// than MaxLineLength are counted but never parsed.
func ParseReader(r io.Reader, fn func(models.BanEvent) error) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		raw, skipped, err := readLine(br)
		if err != nil && err != io.EOF {
			return st, err
		}
		if err == io.EOF && len(raw) == 0 && !skipped {
			return st, nil
		}
		st.Lines++
		if !skipped {
			line := strings.TrimSuffix(strings.TrimSuffix(string(raw), "\n"), "\r")
			if ev, ok := Parse(line); ok {
				st.Parsed++
				if err := fn(ev); err != nil {
					return st, err
				}
			}
		}
		if err == io.EOF {
			return st, nil
		}
	}
}

// readLine returns the next line including its newline. Once a line grows
// past MaxLineLength the rest of it is drained and skipped is true.
func readLine(br *bufio.Reader) (line []byte, skipped bool, err error) {
	for {
		frag, err := br.ReadSlice('\n')
		if !skipped {
			if len(line)+len(frag) > MaxLineLength {
				line, skipped = nil, true
			} else {
				line = append(line, frag...)
			}
		}
		if err != bufio.ErrBufferFull {
			return line, skipped, err
		}
	}
}
