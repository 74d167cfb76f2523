package particles

import (
	"fmt"
	"sort"

	"github.com/notargets/DEMKernel/mesh"
)

// Store is an arena of particles addressed by id. Pointers returned by Get
// stay valid until the next Insert, Remove or ReplaceGhosts; contact
// records therefore hold ids, never pointers.
type Store struct {
	particles []Particle
	index     map[ID]int // id -> slot
}

func NewStore() *Store {
	return &Store{index: make(map[ID]int)}
}

// Len returns the number of local and ghost particles held
func (s *Store) Len() int {
	return len(s.particles)
}

// Insert adds a particle to the store
func (s *Store) Insert(p Particle) error {
	if _, ok := s.index[p.ID]; ok {
		return fmt.Errorf("insert %d: %w", p.ID, ErrDuplicateParticle)
	}
	s.index[p.ID] = len(s.particles)
	s.particles = append(s.particles, p)
	return nil
}

// Remove deletes a particle and returns its last state
func (s *Store) Remove(id ID) (Particle, error) {
	slot, ok := s.index[id]
	if !ok {
		return Particle{}, fmt.Errorf("remove %d: %w", id, ErrUnknownParticle)
	}
	p := s.particles[slot]
	last := len(s.particles) - 1
	s.particles[slot] = s.particles[last]
	s.particles = s.particles[:last]
	delete(s.index, id)
	if slot != last {
		s.index[s.particles[slot].ID] = slot
	}
	return p, nil
}

// Get returns the live particle with the given id
func (s *Store) Get(id ID) (*Particle, error) {
	slot, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("particle %d: %w", id, ErrUnknownParticle)
	}
	return &s.particles[slot], nil
}

// Has returns true if the id is present, local or ghost
func (s *Store) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Each calls fn on every particle in storage order
func (s *Store) Each(fn func(p *Particle)) {
	for i := range s.particles {
		fn(&s.particles[i])
	}
}

// EachLocal calls fn on every locally owned particle
func (s *Store) EachLocal(fn func(p *Particle)) {
	for i := range s.particles {
		if !s.particles[i].Ghost {
			fn(&s.particles[i])
		}
	}
}

// Local returns the ids of the locally owned particles, ascending
func (s *Store) Local() []ID {
	return s.ids(false)
}

// Ghost returns the ids of the ghost particles, ascending
func (s *Store) Ghost() []ID {
	return s.ids(true)
}

func (s *Store) ids(ghost bool) []ID {
	ids := make([]ID, 0, len(s.particles))
	for i := range s.particles {
		if s.particles[i].Ghost == ghost {
			ids = append(ids, s.particles[i].ID)
		}
	}
	sortIDs(ids)
	return ids
}

// ReplaceGhosts drops every ghost particle and stores the given copies
func (s *Store) ReplaceGhosts(ghosts []Particle) error {
	kept := s.particles[:0]
	for _, p := range s.particles {
		if !p.Ghost {
			kept = append(kept, p)
		}
	}
	s.particles = kept
	s.Rebind()
	for _, g := range ghosts {
		g.Ghost = true
		if err := s.Insert(g); err != nil {
			return fmt.Errorf("ghost refresh: %w", err)
		}
	}
	return nil
}

// Rebind rebuilds the id lookup from the particle slots. It must be called
// after every migration or ghost exchange cycle that edits the arena.
func (s *Store) Rebind() {
	s.index = make(map[ID]int, len(s.particles))
	for i := range s.particles {
		s.index[s.particles[i].ID] = i
	}
}

// Locate assigns every particle to the mesh cell containing its center
func (s *Store) Locate(m *mesh.Mesh) error {
	for i := range s.particles {
		p := &s.particles[i]
		cell, ok := m.Locate(p.Position)
		if !ok {
			return fmt.Errorf("particle %d at %v: %w", p.ID, p.Position, ErrOutsideMesh)
		}
		p.Cell = cell
	}
	return nil
}

// Occupancy returns cell -> ids of the particles it contains, ascending.
// Unlocated particles are skipped.
func (s *Store) Occupancy() map[int][]ID {
	occ := make(map[int][]ID)
	for i := range s.particles {
		p := &s.particles[i]
		if p.Cell < 0 {
			continue
		}
		occ[p.Cell] = append(occ[p.Cell], p.ID)
	}
	for _, ids := range occ {
		sortIDs(ids)
	}
	return occ
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
