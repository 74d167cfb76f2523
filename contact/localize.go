package contact

// LocalizeStats counts the records a localization pass kept, moved and erased
type LocalizeStats struct {
	Kept   int
	Moved  int // Kept, but refiled between the local-local and local-ghost containers
	Erased int
}

func (ls *LocalizeStats) add(o LocalizeStats) {
	ls.Kept += o.Kept
	ls.Moved += o.Moved
	ls.Erased += o.Erased
}

// Localize reconciles the persistent containers with the newest broad search
// output. A record whose pair is still a candidate keeps its history and the
// candidate is consumed, so fine search does not see it as new. Any other
// record has ended, or now belongs to another subdomain, and is erased.
//
// A pair whose partner changed subdomain shows up in the other pair
// container's candidates. Its record is refiled there under that
// container's key, flipped when the key order swaps, and keeps its history.
//
// Consumed candidates are remembered by c, so localizing again against the
// same, now emptied, candidates erases nothing further.
//
// Local-ghost records only consult the list of their local participant: a
// pair found under the ghost id alone is erased.
func (s *Store) Localize(c *StepCandidates) LocalizeStats {
	c.initMatched()
	var stats LocalizeStats
	toGhost, st := localizeLocal(s.LocalLocal, c)
	stats.add(st)
	toLocal, st := localizeGhost(s.LocalGhost, c)
	stats.add(st)
	stats.add(refile(s.LocalGhost, toGhost))
	stats.add(refile(s.LocalLocal, toLocal))
	stats.add(localizeWall(s.Wall, c.Wall, c.matchedWall))
	stats.add(localizeWall(s.FloatingWall, c.FloatingWall, c.matchedFloating))
	return stats
}

func localizeLocal(records map[PairKey]*PairRecord, c *StepCandidates) (moved []*PairRecord, stats LocalizeStats) {
	cand := c.LocalLocal
	for key, rec := range records {
		switch {
		case cand.Contains(key.One, key.Two):
			cand.Remove(key.One, key.Two)
		case cand.Contains(key.Two, key.One):
			cand.Remove(key.Two, key.One)
		default:
			if _, ok := c.matchedLocal[key]; ok {
				break
			}
			delete(records, key)
			if r := claimGhost(c, rec); r != nil {
				moved = append(moved, r)
				continue
			}
			stats.Erased++
			continue
		}
		c.matchedLocal[key] = struct{}{}
		stats.Kept++
	}
	return moved, stats
}

// claimGhost consumes the local-ghost candidate of a local-local record
// whose partner became a ghost, and returns the record oriented (local,
// ghost), or nil if the pair is no local-ghost candidate
func claimGhost(c *StepCandidates, rec *PairRecord) *PairRecord {
	var r *PairRecord
	switch {
	case c.LocalGhost.Contains(rec.IDOne, rec.IDTwo):
		r = rec
	case c.LocalGhost.Contains(rec.IDTwo, rec.IDOne):
		r = rec.Flipped()
	default:
		return nil
	}
	c.LocalGhost.Remove(r.IDOne, r.IDTwo)
	c.matchedGhost[r.Key()] = struct{}{}
	return r
}

func localizeGhost(records map[PairKey]*PairRecord, c *StepCandidates) (moved []*PairRecord, stats LocalizeStats) {
	cand := c.LocalGhost
	for key, rec := range records {
		if cand.Contains(key.One, key.Two) {
			cand.Remove(key.One, key.Two)
		} else if _, ok := c.matchedGhost[key]; !ok {
			delete(records, key)
			if r := claimLocal(c, rec); r != nil {
				moved = append(moved, r)
				continue
			}
			stats.Erased++
			continue
		}
		c.matchedGhost[key] = struct{}{}
		stats.Kept++
	}
	return moved, stats
}

// claimLocal consumes the local-local candidate of a local-ghost record
// whose ghost became local, and returns the record under its ordered key, or
// nil if the pair is no local-local candidate
func claimLocal(c *StepCandidates, rec *PairRecord) *PairRecord {
	key := OrderedKey(rec.IDOne, rec.IDTwo)
	switch {
	case c.LocalLocal.Contains(key.One, key.Two):
		c.LocalLocal.Remove(key.One, key.Two)
	case c.LocalLocal.Contains(key.Two, key.One):
		c.LocalLocal.Remove(key.Two, key.One)
	default:
		return nil
	}
	c.matchedLocal[key] = struct{}{}
	if rec.IDOne != key.One {
		return rec.Flipped()
	}
	return rec
}

// refile inserts moved records; a pair the container already holds keeps
// the resident record
func refile(records map[PairKey]*PairRecord, moved []*PairRecord) (stats LocalizeStats) {
	for _, r := range moved {
		if _, ok := records[r.Key()]; ok {
			stats.Erased++
			continue
		}
		records[r.Key()] = r
		stats.Kept++
		stats.Moved++
	}
	return stats
}

func localizeWall(records map[WallKey]*WallRecord, cand WallCandidates,
	matched map[WallKey]struct{}) (stats LocalizeStats) {
	for key := range records {
		if cand.Contains(key.Particle, key.Wall) {
			cand.Remove(key.Particle, key.Wall)
		} else if _, ok := matched[key]; !ok {
			delete(records, key)
			stats.Erased++
			continue
		}
		matched[key] = struct{}{}
		stats.Kept++
	}
	return stats
}
