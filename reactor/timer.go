package reactor

import (
	"container/heap"
	"time"
)

// AlarmID identifies a scheduled alarm for Cancel.
type AlarmID uint64

// AlarmFunc is an alarm callback. Returning a future time reschedules the
// alarm for that time; returning the Stop sentinel terminates it.
type AlarmFunc func(now time.Time) (next time.Time, stop bool)

// Stop is the sentinel callbacks return to terminate themselves, matching
// spec.md §3's "stop" return value. Any zero time.Time also stops.
var Stop time.Time

type alarm struct {
	id      AlarmID
	fire    time.Time
	cb      AlarmFunc
	index   int  // heap index, maintained by container/heap
	removed bool
}

// alarmHeap is a min-heap on fire time.
type alarmHeap []*alarm

func (h alarmHeap) Len() int            { return len(h) }
func (h alarmHeap) Less(i, j int) bool  { return h[i].fire.Before(h[j].fire) }
func (h alarmHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *alarmHeap) Push(x any) {
	a := x.(*alarm)
	a.index = len(*h)
	*h = append(*h, a)
}
func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*h = old[:n-1]
	return a
}

// Scheduler is the timer scheduler owned by a Loop. Set/Cancel run on the
// loop's goroutine only, same as Add/Mod/Del.
type Scheduler struct {
	heap    alarmHeap
	byID    map[AlarmID]*alarm
	nextID  AlarmID
	nowFunc func() time.Time
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{byID: make(map[AlarmID]*alarm), nowFunc: time.Now}
}

// SetNow overrides the scheduler's time source, for deterministic tests.
func (s *Scheduler) SetNow(now func() time.Time) { s.nowFunc = now }

// Set schedules cb to fire at fireAt and returns an id that Cancel accepts.
func (s *Scheduler) Set(fireAt time.Time, cb AlarmFunc) AlarmID {
	s.nextID++
	id := s.nextID
	a := &alarm{id: id, fire: fireAt, cb: cb}
	s.byID[id] = a
	heap.Push(&s.heap, a)
	return id
}

// After schedules cb to fire after d.
func (s *Scheduler) After(d time.Duration, cb AlarmFunc) AlarmID {
	return s.Set(s.nowFunc().Add(d), cb)
}

// Cancel removes an alarm before it fires. Cancelling an unknown or
// already-fired-and-not-rescheduled id is a no-op.
func (s *Scheduler) Cancel(id AlarmID) {
	a, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	if a.index >= 0 {
		heap.Remove(&s.heap, a.index)
	}
}

// RunDue fires every alarm whose time has come, rescheduling or dropping
// each per its callback's return value.
func (s *Scheduler) RunDue() {
	now := s.nowFunc()
	for s.heap.Len() > 0 && !s.heap[0].fire.After(now) {
		a := heap.Pop(&s.heap).(*alarm)
		if _, cancelled := s.byID[a.id]; !cancelled {
			continue
		}
		next, stop := a.cb(now)
		if stop || next.IsZero() {
			delete(s.byID, a.id)
			continue
		}
		a.fire = next
		heap.Push(&s.heap, a)
	}
}

// NextFireTime reports when RunDue next needs to be called, or ok=false if
// no alarms are pending. Session factories use this as CheckTimeout's
// "Returns next check time" per spec.md §4.2.
func (s *Scheduler) NextFireTime() (time.Time, bool) {
	if s.heap.Len() == 0 {
		return time.Time{}, false
	}
	return s.heap[0].fire, true
}

// Len reports the number of pending alarms.
func (s *Scheduler) Len() int { return len(s.byID) }
