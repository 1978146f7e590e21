package domain

// Profile is a named bundle of rule configurations belonging to a
// customer/tenant. Two profiles are equal iff their UUIDs match.
type Profile struct {
	UUID  string        `json:"uuid"`
	Name  string        `json:"name"`
	Rules []*RuleConfig `json:"rules"`
}

// ActiveProfileSet is the immutable snapshot of profiles currently in
// force inside the Director, keyed by UUID. It is rebuilt wholesale and
// atomically on every profile-stream refresh; readers never observe a
// partially-replaced set.
type ActiveProfileSet struct {
	profiles map[string]*Profile
}

// NewActiveProfileSet builds a snapshot from a profile list. Duplicate
// UUIDs within the list collapse, last writer wins, matching the
// profile-stream's replace semantics.
func NewActiveProfileSet(profiles []*Profile) *ActiveProfileSet {
	byUUID := make(map[string]*Profile, len(profiles))
	for _, p := range profiles {
		byUUID[p.UUID] = p
	}
	return &ActiveProfileSet{profiles: byUUID}
}

// Profiles returns the snapshot's profiles in no particular order.
func (s *ActiveProfileSet) Profiles() []*Profile {
	if s == nil {
		return nil
	}
	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// Len returns the number of profiles in the snapshot.
func (s *ActiveProfileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.profiles)
}

// Get returns the profile with the given UUID, if present.
func (s *ActiveProfileSet) Get(uuid string) (*Profile, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.profiles[uuid]
	return p, ok
}
