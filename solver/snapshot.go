package solver

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// Load is the force and torque accumulated on one particle
type Load struct {
	ID     particles.ID `json:"id"`
	Force  r3.Vec       `json:"force"`
	Torque r3.Vec       `json:"torque"`
}

// Snapshot is the restartable state of one subdomain: particles, contact
// histories and the loads of the last force evaluation
type Snapshot struct {
	Rank      int     `json:"rank"`
	Time      float64 `json:"time"`
	StepCount int     `json:"step"`

	Particles    []particles.Particle  `json:"particles"`
	LocalLocal   []*contact.PairRecord `json:"localLocal"`
	LocalGhost   []*contact.PairRecord `json:"localGhost"`
	Wall         []*contact.WallRecord `json:"wall"`
	FloatingWall []*contact.WallRecord `json:"floatingWall"`
	Loads        []Load                `json:"loads"`
}

// Snapshot captures the solver state in deterministic order
func (s *Solver) Snapshot() *Snapshot {
	snap := &Snapshot{
		Rank:         s.Rank,
		Time:         s.Time,
		StepCount:    s.StepCount,
		LocalLocal:   copyPairs(contact.SortedPairs(s.Contacts.LocalLocal)),
		LocalGhost:   copyPairs(contact.SortedPairs(s.Contacts.LocalGhost)),
		Wall:         copyWalls(contact.SortedWalls(s.Contacts.Wall)),
		FloatingWall: copyWalls(contact.SortedWalls(s.Contacts.FloatingWall)),
	}
	ids := append(s.Particles.Local(), s.Particles.Ghost()...)
	for _, id := range ids {
		p, _ := s.Particles.Get(id)
		snap.Particles = append(snap.Particles, *p)
	}
	for _, id := range s.Particles.Local() {
		f, fok := s.Forces.Force[id]
		t, tok := s.Forces.Torque[id]
		if fok || tok {
			snap.Loads = append(snap.Loads, Load{ID: id, Force: f, Torque: t})
		}
	}
	return snap
}

// Restore replaces the solver state with a snapshot. The next step continues
// as if the run had not been interrupted.
func (s *Solver) Restore(snap *Snapshot) error {
	if snap.Rank != s.Rank {
		return fmt.Errorf("snapshot of rank %d restored into rank %d", snap.Rank, s.Rank)
	}
	store := particles.NewStore()
	for _, p := range snap.Particles {
		if err := store.Insert(p); err != nil {
			return fmt.Errorf("restore rank %d: %w", s.Rank, err)
		}
	}
	contacts := contact.NewStore()
	for _, r := range copyPairs(snap.LocalLocal) {
		contacts.LocalLocal[r.Key()] = r
	}
	for _, r := range copyPairs(snap.LocalGhost) {
		contacts.LocalGhost[r.Key()] = r
	}
	for _, r := range copyWalls(snap.Wall) {
		contacts.Wall[r.Key()] = r
	}
	for _, r := range copyWalls(snap.FloatingWall) {
		contacts.FloatingWall[r.Key()] = r
	}
	acc := particles.NewAccumulators()
	for _, l := range snap.Loads {
		acc.Force[l.ID] = l.Force
		acc.Torque[l.ID] = l.Torque
	}

	s.Particles, s.Contacts, s.Forces = store, contacts, acc
	s.Time, s.StepCount = snap.Time, snap.StepCount
	s.ready = true
	return nil
}

// WriteSnapshot encodes a snapshot as indented JSON
func WriteSnapshot(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return &snap, nil
}

func copyPairs(recs []*contact.PairRecord) []*contact.PairRecord {
	out := make([]*contact.PairRecord, len(recs))
	for i, r := range recs {
		c := *r
		out[i] = &c
	}
	return out
}

func copyWalls(recs []*contact.WallRecord) []*contact.WallRecord {
	out := make([]*contact.WallRecord, len(recs))
	for i, r := range recs {
		c := *r
		out[i] = &c
	}
	return out
}
