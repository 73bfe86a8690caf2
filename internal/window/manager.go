package window

import "sort"

// Manager owns every rule's CountSlots. A detection orchestrator creates
// one Manager and holds exclusive mutable access to it while a run is in
// progress; rules themselves only ever see it through Add at select time
// and Keys/Slot at flush time.
type Manager struct {
	rules map[string]map[string]*CountSlot
}

// NewManager returns an empty slot manager.
func NewManager() *Manager {
	return &Manager{rules: make(map[string]map[string]*CountSlot)}
}

// Add records an observation for ruleID under the given by-key, creating
// the slot on first use.
func (m *Manager) Add(ruleID, key string, o Observation) {
	slots, ok := m.rules[ruleID]
	if !ok {
		slots = make(map[string]*CountSlot)
		m.rules[ruleID] = slots
	}
	slot, ok := slots[key]
	if !ok {
		slot = &CountSlot{}
		slots[key] = slot
	}
	slot.Add(o)
}

// Keys returns the by-keys currently tracked for ruleID, sorted for
// deterministic flush order.
func (m *Manager) Keys(ruleID string) []string {
	slots, ok := m.rules[ruleID]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Slot returns the slot for (ruleID, key), if any.
func (m *Manager) Slot(ruleID, key string) (*CountSlot, bool) {
	slots, ok := m.rules[ruleID]
	if !ok {
		return nil, false
	}
	slot, ok := slots[key]
	return slot, ok
}

// Delete discards every slot belonging to ruleID.
func (m *Manager) Delete(ruleID string) {
	delete(m.rules, ruleID)
}

// DeleteAll discards every slot for every rule.
func (m *Manager) DeleteAll() {
	m.rules = make(map[string]map[string]*CountSlot)
}
