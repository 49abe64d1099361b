// Package types holds the domain data model shared across NHM's components:
// app/node status enums, the failure-tracker's per-lifecycle records, and
// the configuration keys read once at startup.
package types

import "time"

// AppStatus is the three-valued status NHM assigns to a managed application.
type AppStatus int

const (
	// AppStatusFailed marks an application that has failed.
	AppStatusFailed AppStatus = iota
	// AppStatusRestarting marks an application that failed and is being restarted.
	AppStatusRestarting
	// AppStatusOk marks an application that is running (or has recovered).
	AppStatusOk
)

func (s AppStatus) String() string {
	switch s {
	case AppStatusFailed:
		return "failed"
	case AppStatusRestarting:
		return "restarting"
	case AppStatusOk:
		return "ok"
	default:
		return "unknown"
	}
}

// AppErrorStatus is returned from the façade's public operations.
type AppErrorStatus int

const (
	// AppErrorOk indicates the operation completed successfully.
	AppErrorOk AppErrorStatus = iota
	// AppErrorError indicates a transport or internal failure.
	AppErrorError
	// AppErrorUnknownApp indicates the named app has no recorded failure.
	AppErrorUnknownApp
	// AppErrorRestartNotPossible indicates the restart was refused by policy or by NSM.
	AppErrorRestartNotPossible
)

func (e AppErrorStatus) String() string {
	switch e {
	case AppErrorOk:
		return "ok"
	case AppErrorError:
		return "error"
	case AppErrorUnknownApp:
		return "unknown_app"
	case AppErrorRestartNotPossible:
		return "restart_not_possible"
	default:
		return "unknown"
	}
}

// NodeShutdownState records how the previous life cycle ended.
type NodeShutdownState uint32

const (
	// NodeShutdownNotSet is the reserved value for "no persisted state" / read failure.
	NodeShutdownNotSet NodeShutdownState = iota
	// NodeShutdownStarted marks a life cycle that has begun but not yet ended.
	NodeShutdownStarted
	// NodeShutdownShutdown marks a life cycle that ended in an orderly shutdown.
	NodeShutdownShutdown
)

func (s NodeShutdownState) String() string {
	switch s {
	case NodeShutdownNotSet:
		return "not_set"
	case NodeShutdownStarted:
		return "started"
	case NodeShutdownShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Byte encodes the shutdown state as the single persisted byte.
func (s NodeShutdownState) Byte() byte {
	switch s {
	case NodeShutdownStarted:
		return 1
	case NodeShutdownShutdown:
		return 2
	default:
		return 0
	}
}

// NodeShutdownStateFromByte decodes the single persisted byte. Any value
// other than 1 or 2 yields NodeShutdownNotSet.
func NodeShutdownStateFromByte(b byte) NodeShutdownState {
	switch b {
	case 1:
		return NodeShutdownStarted
	case 2:
		return NodeShutdownShutdown
	default:
		return NodeShutdownNotSet
	}
}

// UnitActiveState mirrors the unit supervisor's own small state machine for
// a tracked unit.
type UnitActiveState int

const (
	// UnitActiveStateUnknown is the initial value and the value used for unparseable input.
	UnitActiveStateUnknown UnitActiveState = iota
	UnitActiveStateActive
	UnitActiveStateReloading
	UnitActiveStateInactive
	UnitActiveStateFailed
	UnitActiveStateActivating
	UnitActiveStateDeactivating
)

func (s UnitActiveState) String() string {
	switch s {
	case UnitActiveStateActive:
		return "active"
	case UnitActiveStateReloading:
		return "reloading"
	case UnitActiveStateInactive:
		return "inactive"
	case UnitActiveStateFailed:
		return "failed"
	case UnitActiveStateActivating:
		return "activating"
	case UnitActiveStateDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// ParseUnitActiveState maps the unit supervisor's ActiveState string onto
// UnitActiveState. Unrecognized strings map to UnitActiveStateUnknown.
func ParseUnitActiveState(s string) UnitActiveState {
	switch s {
	case "active":
		return UnitActiveStateActive
	case "reloading":
		return UnitActiveStateReloading
	case "inactive":
		return UnitActiveStateInactive
	case "failed":
		return UnitActiveStateFailed
	case "activating":
		return UnitActiveStateActivating
	case "deactivating":
		return UnitActiveStateDeactivating
	default:
		return UnitActiveStateUnknown
	}
}

// RestartReason is passed to the NSM on every restart request this
// service issues.
type RestartReason int

const (
	// RestartReasonApplicationFailure is the only reason NHM issues today
	// (both the threshold check and the façade's RequestNodeRestart use it).
	RestartReasonApplicationFailure RestartReason = iota
)

func (r RestartReason) String() string {
	switch r {
	case RestartReasonApplicationFailure:
		return "application_failure"
	default:
		return "unknown"
	}
}

// ShutdownType distinguishes a restart request's urgency.
type ShutdownType int

const (
	// ShutdownTypeNormal is used for NHM-issued restart requests.
	ShutdownTypeNormal ShutdownType = iota
	// ShutdownTypeFast is used for the Fast shutdown-client registration mode.
	ShutdownTypeFast
)

func (s ShutdownType) String() string {
	switch s {
	case ShutdownTypeNormal:
		return "normal"
	case ShutdownTypeFast:
		return "fast"
	default:
		return "unknown"
	}
}

// LifecycleRequestType is the kind of request NSM delivers to the
// lifecycle participant's consumer interface.
type LifecycleRequestType int

const (
	// LifecycleRequestShutdown asks the service to prepare for shutdown.
	LifecycleRequestShutdown LifecycleRequestType = iota
	// LifecycleRequestRunup asks the service to prepare for a run-up.
	LifecycleRequestRunup
)

// ObservedUnit is a unit tracked by the observer. Its lifetime is bound to
// the observer: created on unit-added, destroyed on unit-removed or teardown.
type ObservedUnit struct {
	Name                string
	Path                string
	ActiveState         UnitActiveState
	SubscriptionHandle  any
}

// FailedApp is a per-life-cycle history entry: how many times an app
// transitioned into the failed state during that life cycle.
type FailedApp struct {
	Name      string `json:"name"`
	FailCount uint32 `json:"failcount"`
}

// LcInfo is the per-life-cycle record kept in NodeInfo.
type LcInfo struct {
	StartState NodeShutdownState `json:"start_state"`
	FailedApps []FailedApp       `json:"failed_apps"`
}

// FindFailedApp returns a pointer to the FailedApp entry for name, or nil.
func (lc *LcInfo) FindFailedApp(name string) *FailedApp {
	for i := range lc.FailedApps {
		if lc.FailedApps[i].Name == name {
			return &lc.FailedApps[i]
		}
	}
	return nil
}

// NodeInfo is the ordered sequence of LcInfo: index 0 is always the current
// life cycle, index >= 1 are previous life cycles in reverse chronological
// order.
type NodeInfo []LcInfo

// CurrentFailedApp is an entry in the failure tracker's current-LC set.
type CurrentFailedApp struct {
	Name string
}

// Configuration holds the values read once at startup and treated as
// immutable afterward.
type Configuration struct {
	HistoricLcCount uint32
	MaxFailedApps   uint32
	NoRestartApps   []string
	UlChkInterval   time.Duration
	MonitoredFiles  []string
	MonitoredProgs  []string
	MonitoredProcs  []string
	MonitoredDbus   []string
}
