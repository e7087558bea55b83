package habitat

import (
	"sync"

	"github.com/centraunit/habitat/internal/goid"
)

// resolutionState is the chain of wombs one goroutine is constructing.
type resolutionState struct {
	chain []*Womb
	index map[*Womb]int
}

// buildKey names one construction: a womb building into one scope
// instance. Transient builds use a nil instance and are never guarded.
type buildKey struct {
	w  *Womb
	si *ScopeInstance
}

// tracker detects dependency cycles and makes construction exclusive per
// womb and scope instance. Resolution is call-stack recursive, so each goroutine owns one
// chain. A goroutine that finds a womb under construction elsewhere waits
// for it, unless the wait-for graph leads back to itself.
type tracker struct {
	states    sync.Map
	statePool sync.Pool

	mu      sync.Mutex
	owners  map[buildKey]int64
	done    map[buildKey]chan struct{}
	waiting map[int64]buildKey
}

func newTracker() *tracker {
	return &tracker{
		statePool: sync.Pool{
			New: func() interface{} {
				return &resolutionState{
					chain: make([]*Womb, 0, 8),
					index: make(map[*Womb]int, 8),
				}
			},
		},
		owners:  make(map[buildKey]int64),
		done:    make(map[buildKey]chan struct{}),
		waiting: make(map[int64]buildKey),
	}
}

// enter pushes w on the calling goroutine's chain.
func (t *tracker) enter(w *Womb) (int64, error) {
	id := goid.Get()
	s, ok := t.states.Load(id)
	if !ok {
		s = t.statePool.Get()
		t.states.Store(id, s)
	}
	state := s.(*resolutionState)

	if i, ok := state.index[w]; ok {
		names := make([]string, 0, len(state.chain)-i+1)
		for _, c := range state.chain[i:] {
			names = append(names, c.String())
		}
		return id, &CircularDependencyError{Chain: append(names, w.String())}
	}
	state.index[w] = len(state.chain)
	state.chain = append(state.chain, w)
	return id, nil
}

// leave pops w from the chain of goroutine id.
func (t *tracker) leave(id int64, w *Womb) {
	s, ok := t.states.Load(id)
	if !ok {
		return
	}
	state := s.(*resolutionState)
	delete(state.index, w)
	if n := len(state.chain); n > 0 && state.chain[n-1] == w {
		state.chain = state.chain[:n-1]
	}
	if len(state.chain) == 0 {
		t.states.Delete(id)
		t.statePool.Put(state)
	}
}

// acquire blocks until goroutine id may construct w into si exclusively.
func (t *tracker) acquire(id int64, w *Womb, si *ScopeInstance) error {
	k := buildKey{w: w, si: si}
	t.mu.Lock()
	for {
		owner, busy := t.owners[k]
		if !busy {
			t.owners[k] = id
			t.done[k] = make(chan struct{})
			t.mu.Unlock()
			return nil
		}
		if chain := t.waitCycle(id, owner, k); chain != nil {
			t.mu.Unlock()
			return &CircularDependencyError{Chain: chain}
		}

		ch := t.done[k]
		t.waiting[id] = k
		t.mu.Unlock()
		<-ch
		t.mu.Lock()
		delete(t.waiting, id)
	}
}

// waitCycle follows owner -> build it waits on -> that build's owner ...
// and returns the wombs on the path if it reaches id. Must hold mu.
func (t *tracker) waitCycle(id, owner int64, k buildKey) []string {
	chain := []string{k.w.String()}
	cur := owner
	for steps := 0; steps <= len(t.waiting); steps++ {
		if cur == id {
			return append(chain, k.w.String())
		}
		next, ok := t.waiting[cur]
		if !ok {
			return nil
		}
		chain = append(chain, next.w.String())
		if cur, ok = t.owners[next]; !ok {
			return nil
		}
	}
	return nil
}

func (t *tracker) release(w *Womb, si *ScopeInstance) {
	k := buildKey{w: w, si: si}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.owners, k)
	if ch, ok := t.done[k]; ok {
		close(ch)
		delete(t.done, k)
	}
}
