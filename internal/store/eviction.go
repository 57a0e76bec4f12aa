package store

import "github.com/marmos91/cachefsd/internal/lock"

// admitLocked runs the eviction/admission algorithm of spec.md §4.3 for one
// mutation against target that grows usage by deltaBytes/deltaFiles. The
// store mutex must already be held.
//
// Victims are selected from s.order (replacement order, oldest first),
// excluding target itself and any entry currently locked. Victims are
// popped one at a time until both bytes_in_use+deltaBytes<=max_bytes and
// files_in_use+deltaFiles<=max_files, or the candidate set is exhausted. If
// admission still cannot be satisfied, no entry is removed (ok=false): the
// caller must abort with FILE_TOO_LARGE and leave the store unchanged.
func (s *Store) admitLocked(target *FileEntry, deltaBytes, deltaFiles int) (evicted []EvictedFile, victimWaiters []*lock.Waiter, ok bool) {
	if s.bytesInUse+deltaBytes <= s.maxBytes && s.filesInUse+deltaFiles <= s.maxFiles {
		return nil, nil, true
	}

	var victims []*FileEntry
	freedBytes, freedFiles := 0, 0

	for el := s.order.Front(); el != nil; el = el.Next() {
		if s.bytesInUse+deltaBytes-freedBytes <= s.maxBytes && s.filesInUse+deltaFiles-freedFiles <= s.maxFiles {
			break
		}
		e := el.Value.(*FileEntry)
		if e == target || e.LockOwner != "" {
			continue
		}
		victims = append(victims, e)
		freedBytes += len(e.Content)
		freedFiles++
	}

	if s.bytesInUse+deltaBytes-freedBytes > s.maxBytes || s.filesInUse+deltaFiles-freedFiles > s.maxFiles {
		// Candidate set exhausted without reaching capacity: rollback,
		// no partial eviction (spec.md §4.3 step 3, §7).
		return nil, nil, false
	}

	evicted = make([]EvictedFile, 0, len(victims))
	for _, v := range victims {
		evicted = append(evicted, EvictedFile{Pathname: v.Pathname, Content: append([]byte(nil), v.Content...)})
		victimWaiters = append(victimWaiters, s.removeLocked(v)...)
	}
	s.evictionsTotal += uint64(len(victims))
	return evicted, victimWaiters, true
}
