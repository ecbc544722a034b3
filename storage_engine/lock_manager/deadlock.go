package lockmgr

// closesCycle walks the wait-for graph from owner. An owner waits for every
// other owner holding an incompatible mode on the object it is queued on,
// and for everyone queued ahead of it there. lm.mu must be held.
func (lm *LockManager) closesCycle(owner Owner) bool {
	visited := make(map[Owner]bool)
	var stack []Owner
	stack = append(stack, lm.blockers(owner)...)

	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if o == owner {
			return true
		}
		if visited[o] {
			continue
		}
		visited[o] = true
		stack = append(stack, lm.blockers(o)...)
	}
	return false
}

func (lm *LockManager) blockers(o Owner) []Owner {
	wf, ok := lm.waiting[o]
	if !ok {
		return nil
	}
	e, ok := lm.locks[wf.key]
	if !ok {
		return nil
	}

	var out []Owner
	for holder, h := range e.holders {
		if holder == o {
			continue
		}
		for held := range h.counts {
			if !compatible(held, wf.mode) {
				out = append(out, holder)
				break
			}
		}
	}
	for _, w := range e.waiters {
		if w.owner == o {
			break
		}
		out = append(out, w.owner)
	}
	return out
}
