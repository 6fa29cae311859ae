package services

import (
	"context"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/ipaddr"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/util"
)

// EngineStatus is the live overview of the enforcement engine.
type EngineStatus struct {
	Running bool                `json:"running"`
	Jails   []models.JailStatus `json:"jails"`
	Errors  map[string]string   `json:"errors,omitempty"`
}

// JailOutcome is the result of one per-jail command in a batch.
type JailOutcome struct {
	Jail  string `json:"jail"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BanService issues live ban and unban commands and records them in history.
type BanService struct {
	client  engine.Client
	history *HistoryService
}

func NewBanService(client engine.Client, history *HistoryService) *BanService {
	return &BanService{client: client, history: history}
}

func validateBanTarget(jail, ip string) (string, error) {
	ip = ipaddr.Normalize(ip)
	if !util.IsSafeName(jail) {
		return ip, apperr.Validation("invalid jail name %q", util.SanitizeForLog(jail))
	}
	if !ipaddr.IsIPOrCIDR(ip) {
		return ip, apperr.Validation("invalid IP address %q", util.SanitizeForLog(ip))
	}
	return ip, nil
}

func (s *BanService) record(jail, ip string, action models.BanAction, reason string) {
	if s.history == nil {
		return
	}
	ev := &models.BanEvent{IP: ip, Jail: jail, Action: action, Reason: reason, Source: models.SourceLive}
	if err := s.history.Append(ev); err != nil {
		// the engine has already acted, so this is only logged
		logger.WithFields(map[string]interface{}{"ip": ip, "jail": jail, "error": err.Error()}).Warn("failed to record live action")
	}
}

// Ban bans ip in jail right away.
func (s *BanService) Ban(ctx context.Context, jail, ip, reason string) error {
	ip, err := validateBanTarget(jail, ip)
	if err != nil {
		return err
	}
	if err := s.client.Ban(ctx, jail, ip); err != nil {
		return err
	}
	s.record(jail, ip, models.ActionBan, reason)
	logger.WithFields(map[string]interface{}{"ip": ip, "jail": jail}).Info("address banned")
	return nil
}

// Unban lifts the ban of ip in jail.
func (s *BanService) Unban(ctx context.Context, jail, ip string) error {
	ip, err := validateBanTarget(jail, ip)
	if err != nil {
		return err
	}
	if err := s.client.Unban(ctx, jail, ip); err != nil {
		return err
	}
	s.record(jail, ip, models.ActionUnban, "")
	logger.WithFields(map[string]interface{}{"ip": ip, "jail": jail}).Info("address unbanned")
	return nil
}

// UnbanEverywhere tries to unban ip in every active jail and reports each
// jail's outcome. Jails where ip was not banned show up as failures.
func (s *BanService) UnbanEverywhere(ctx context.Context, ip string) ([]JailOutcome, error) {
	ip = ipaddr.Normalize(ip)
	if !ipaddr.IsIPOrCIDR(ip) {
		return nil, apperr.Validation("invalid IP address %q", util.SanitizeForLog(ip))
	}
	jails, err := s.client.ActiveJails(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]JailOutcome, 0, len(jails))
	for _, jail := range jails {
		if err := s.client.Unban(ctx, jail, ip); err != nil {
			out = append(out, JailOutcome{Jail: jail, Error: err.Error()})
			continue
		}
		s.record(jail, ip, models.ActionUnban, "")
		out = append(out, JailOutcome{Jail: jail, OK: true})
	}
	return out, nil
}

// Status pings the engine and collects the status of every active jail.
// A jail whose status cannot be read is reported in Errors.
func (s *BanService) Status(ctx context.Context) (EngineStatus, error) {
	st := EngineStatus{Jails: []models.JailStatus{}}
	running, err := s.client.Ping(ctx)
	if err != nil {
		return st, err
	}
	st.Running = running
	if !running {
		return st, nil
	}
	jails, err := s.client.ActiveJails(ctx)
	if err != nil {
		return st, err
	}
	for _, jail := range jails {
		js, err := s.client.JailStatus(ctx, jail)
		if err != nil {
			if st.Errors == nil {
				st.Errors = map[string]string{}
			}
			st.Errors[jail] = err.Error()
			continue
		}
		st.Jails = append(st.Jails, js)
	}
	return st, nil
}

// BannedIn lists the active jails currently banning ip.
func (s *BanService) BannedIn(ctx context.Context, ip string) ([]string, error) {
	ip = ipaddr.Normalize(ip)
	st, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, js := range st.Jails {
		for _, b := range js.BannedIPs {
			if b == ip {
				out = append(out, js.Name)
				break
			}
		}
	}
	return out, nil
}
