package state

import "bytes"

type roleMembers [][20]byte

func (m *Manager) loadRole(role string) (roleMembers, error) {
	var members roleMembers
	if _, err := m.loadRLP(roleKey(role), &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (m *Manager) writeRole(role string, members roleMembers) error {
	if len(members) == 0 {
		m.delete(roleKey(role))
		return nil
	}
	return m.writeRLP(roleKey(role), members)
}

// HasRole reports whether the address belongs to the role.
func (m *Manager) HasRole(role string, addr [20]byte) bool {
	members, err := m.loadRole(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}

// GrantRole adds the address to the role. The member list stays sorted so
// the stored encoding is deterministic. Idempotent.
func (m *Manager) GrantRole(role string, addr [20]byte) error {
	members, err := m.loadRole(role)
	if err != nil {
		return err
	}
	idx := len(members)
	for i, member := range members {
		cmp := bytes.Compare(member[:], addr[:])
		if cmp == 0 {
			return nil
		}
		if cmp > 0 {
			idx = i
			break
		}
	}
	members = append(members, [20]byte{})
	copy(members[idx+1:], members[idx:])
	members[idx] = addr
	return m.writeRole(role, members)
}

// RevokeRole removes the address from the role. Idempotent.
func (m *Manager) RevokeRole(role string, addr [20]byte) error {
	members, err := m.loadRole(role)
	if err != nil {
		return err
	}
	for i, member := range members {
		if member == addr {
			members = append(members[:i], members[i+1:]...)
			return m.writeRole(role, members)
		}
	}
	return nil
}
