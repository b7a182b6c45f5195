package flow

import "container/list"

// expiryQueue keeps open directions ordered by their last packet. With a
// time-ordered trace the front is always the longest idle direction, so
// an expiry pass stops at the first direction that is still active.
type expiryQueue struct {
	order *list.List
	index map[*Stats]*list.Element
}

func newExpiryQueue() *expiryQueue {
	return &expiryQueue{
		order: list.New(),
		index: make(map[*Stats]*list.Element),
	}
}

// touch moves s to the back of the queue. Closed directions leave it.
func (q *expiryQueue) touch(s *Stats) {
	e, queued := q.index[s]
	if s.Closed() {
		if queued {
			q.order.Remove(e)
			delete(q.index, s)
		}
		return
	}
	if queued {
		q.order.MoveToBack(e)
		return
	}
	q.index[s] = q.order.PushBack(s)
}

// expire closes every queued direction idle for at least timeout ticks
// at now and returns how many were closed.
func (q *expiryQueue) expire(now, timeout uint64) int {
	n := 0
	for e := q.order.Front(); e != nil; {
		s := e.Value.(*Stats)
		if now < s.LastSeen || now-s.LastSeen < timeout {
			break
		}
		next := e.Next()
		q.order.Remove(e)
		delete(q.index, s)
		s.Close(now)
		n++
		e = next
	}
	return n
}

func (q *expiryQueue) len() int {
	return q.order.Len()
}
