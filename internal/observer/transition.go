package observer

import "github.com/wemix/nhm/internal/types"

// transitionResult is one cell of the transition table: whether the
// observer fires a callback on this (old, new) pair, and if so which
// AppStatus it carries.
type transitionResult struct {
	fire   bool
	status types.AppStatus
}

// transitionTable is the deterministic old-state/new-state -> callback map
// from, kept as plain data rather than branching code so the
// full map is visible and total by construction (missing cells suppress
// the callback).
var transitionTable = map[types.UnitActiveState]map[types.UnitActiveState]transitionResult{
	types.UnitActiveStateUnknown: {
		types.UnitActiveStateActive: {true, types.AppStatusOk},
		types.UnitActiveStateFailed: {true, types.AppStatusFailed},
	},
	types.UnitActiveStateActive: {
		types.UnitActiveStateFailed: {true, types.AppStatusFailed},
	},
	types.UnitActiveStateReloading: {
		types.UnitActiveStateActive: {true, types.AppStatusOk},
		types.UnitActiveStateFailed: {true, types.AppStatusFailed},
	},
	types.UnitActiveStateInactive: {
		types.UnitActiveStateActive: {true, types.AppStatusOk},
		types.UnitActiveStateFailed: {true, types.AppStatusFailed},
	},
	types.UnitActiveStateFailed: {
		types.UnitActiveStateActive:     {true, types.AppStatusOk},
		types.UnitActiveStateActivating: {true, types.AppStatusRestarting},
	},
	types.UnitActiveStateActivating: {
		types.UnitActiveStateActive: {true, types.AppStatusOk},
		types.UnitActiveStateFailed: {true, types.AppStatusFailed},
	},
	types.UnitActiveStateDeactivating: {
		types.UnitActiveStateFailed: {true, types.AppStatusFailed},
	},
}

// lookupTransition returns whether (old -> new) fires a callback and, if
// so, which AppStatus it carries. Unlisted pairs (including old == new,
// which never appears in the table) return fire=false.
func lookupTransition(oldState, newState types.UnitActiveState) (types.AppStatus, bool) {
	row, ok := transitionTable[oldState]
	if !ok {
		return 0, false
	}
	cell, ok := row[newState]
	if !ok {
		return 0, false
	}
	return cell.status, cell.fire
}
