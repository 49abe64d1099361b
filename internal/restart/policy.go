// Package restart implements NHM's restart policy: the
// deny-list gate on RequestNodeRestart, and the unconditional
// threshold-triggered restart called from the failure tracker.
package restart

import (
	"context"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// NSMRestarter is the subset of internal/nsm.Client the policy needs.
type NSMRestarter interface {
	RequestNodeRestart(ctx context.Context, reason types.RestartReason, kind types.ShutdownType) types.AppErrorStatus
}

// Policy enforces the deny-list and the failure-count threshold.
type Policy struct {
	nsm           NSMRestarter
	noRestart     map[string]struct{}
	maxFailedApps uint32
	log           *logger.Logger
}

// New builds a Policy. noRestartApps is the configured deny-list;
// maxFailedApps is the threshold from Configuration (0 disables the
// threshold check).
func New(nsm NSMRestarter, noRestartApps []string, maxFailedApps uint32, log *logger.Logger) *Policy {
	deny := make(map[string]struct{}, len(noRestartApps))
	for _, name := range noRestartApps {
		deny[name] = struct{}{}
	}
	return &Policy{nsm: nsm, noRestart: deny, maxFailedApps: maxFailedApps, log: log}
}

// RequestNodeRestart implementsthe RequestNodeRestart gate:
// deny-listed apps are refused without contacting the NSM at all.
func (p *Policy) RequestNodeRestart(ctx context.Context, appName string) types.AppErrorStatus {
	if _, denied := p.noRestart[appName]; denied {
		if p.log != nil {
			p.log.Info("restart: refused by deny-list", "app", appName)
		}
		return types.AppErrorRestartNotPossible
	}
	return p.nsm.RequestNodeRestart(ctx, types.RestartReasonApplicationFailure, types.ShutdownTypeNormal)
}

// CheckThreshold implements the unconditional threshold check called from
// the failure tracker: if
// maxFailedApps > 0 and currentFailedCount has reached it, an
// unconditional restart request is issued — the deny-list does not apply
// here, and the result is logged but not otherwise acted upon.
func (p *Policy) CheckThreshold(ctx context.Context, currentFailedCount int) {
	if p.maxFailedApps == 0 || uint32(currentFailedCount) < p.maxFailedApps {
		return
	}
	status := p.nsm.RequestNodeRestart(ctx, types.RestartReasonApplicationFailure, types.ShutdownTypeNormal)
	if p.log != nil {
		p.log.Info("restart: threshold reached, restart requested",
			"current_failed_count", currentFailedCount,
			"max_failed_apps", p.maxFailedApps,
			"result", status.String())
	}
}
