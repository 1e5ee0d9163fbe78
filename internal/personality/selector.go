package personality

import "time"

// State is the active personality for one session. There is exactly one
// per session; the caller persists it between turns.
type State struct {
	Current    string    `json:"current"`
	LastSwitch time.Time `json:"last_switch"`
	Pinned     bool      `json:"pinned"`
}

// Override is an explicit personality request from the caller.
type Override struct {
	ProfileID string
	Clear     bool
}

// Selector decides the next active personality. Selection is a pure
// function of (previous state, signals, override).
type Selector struct {
	registry *Registry
}

func NewSelector(r *Registry) *Selector {
	return &Selector{registry: r}
}

// InitialState returns the state a fresh session starts in.
func (s *Selector) InitialState(now time.Time) State {
	return State{Current: s.registry.defaultID, LastSwitch: now}
}

// Select applies the transition rules:
//  1. a valid override switches unconditionally and pins the state;
//     an unknown override id is ignored and the state retained
//  2. while pinned, or when the top signal is below the switch
//     threshold, the session remains where it is (stickiness)
//  3. otherwise the session moves to the top signal's profile
//
// LastSwitch only moves on an actual change of profile.
func (s *Selector) Select(prev State, signals []Signal, override *Override, now time.Time) State {
	if override != nil {
		if override.Clear {
			prev.Pinned = false
		} else if s.registry.Get(override.ProfileID) != nil {
			if override.ProfileID != prev.Current {
				prev.Current = override.ProfileID
				prev.LastSwitch = now
			}
			prev.Pinned = true
			return prev
		}
		// fall through: invalid override behaves like no override
	}

	if prev.Pinned {
		return prev
	}

	top := topSignal(signals)
	if top == nil || top.Confidence < s.registry.Threshold {
		return prev
	}
	if s.registry.Get(top.ProfileID) == nil {
		return prev
	}
	if top.ProfileID != prev.Current {
		prev.Current = top.ProfileID
		prev.LastSwitch = now
	}
	return prev
}

func topSignal(signals []Signal) *Signal {
	if len(signals) == 0 {
		return nil
	}
	return &signals[0]
}
