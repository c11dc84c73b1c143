package sched

// list is a doubly-linked queue of tasks threaded through one of the
// three link fields every Task embeds. Which field is selected by the
// accessor function, so the same list code serves the run buckets,
// the wait queue, and the sleep queue.
type list struct {
	head, tail TaskID
	linkOf     func(*Task) *link
}

func newList(linkOf func(*Task) *link) list {
	return list{head: noTask, tail: noTask, linkOf: linkOf}
}

func (l *list) empty() bool { return l.head == noTask }

// pushBack appends t to the list.
func (l *list) pushBack(s *Scheduler, id TaskID) {
	t := s.task(id)
	ln := l.linkOf(t)
	ln.next = noTask
	ln.prev = l.tail
	if l.tail != noTask {
		l.linkOf(s.task(l.tail)).next = id
	} else {
		l.head = id
	}
	l.tail = id
}

// insertBefore places id immediately before pos; pos == noTask
// degenerates to pushBack.
func (l *list) insertBefore(s *Scheduler, id, pos TaskID) {
	if pos == noTask {
		l.pushBack(s, id)
		return
	}
	t := s.task(id)
	p := s.task(pos)
	ln := l.linkOf(t)
	pln := l.linkOf(p)
	ln.next = pos
	ln.prev = pln.prev
	if pln.prev != noTask {
		l.linkOf(s.task(pln.prev)).next = id
	} else {
		l.head = id
	}
	pln.prev = id
}

// remove unlinks id from the list.
func (l *list) remove(s *Scheduler, id TaskID) {
	t := s.task(id)
	ln := l.linkOf(t)
	if ln.prev != noTask {
		l.linkOf(s.task(ln.prev)).next = ln.next
	} else {
		l.head = ln.next
	}
	if ln.next != noTask {
		l.linkOf(s.task(ln.next)).prev = ln.prev
	} else {
		l.tail = ln.prev
	}
	ln.reset()
}

// popFront removes and returns the first task, or noTask if empty.
func (l *list) popFront(s *Scheduler) TaskID {
	id := l.head
	if id == noTask {
		return noTask
	}
	l.remove(s, id)
	return id
}

func runLinkOf(t *Task) *link   { return &t.runLink }
func waitLinkOf(t *Task) *link  { return &t.waitLink }
func sleepLinkOf(t *Task) *link { return &t.sleepLink }
