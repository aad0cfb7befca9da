package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// TaskType is the kind of turn-advance work a task carries.
type TaskType int

const (
	// TaskTurn hands control to Target.
	TaskTurn TaskType = iota
	// TaskPlayCompleted reacts to Target having committed a play.
	TaskPlayCompleted
	// TaskPassCompleted reacts to Target having passed.
	TaskPassCompleted
	// TaskFinalize closes the round in favour of Target.
	TaskFinalize
)

func (t TaskType) String() string {
	switch t {
	case TaskTurn:
		return "turn"
	case TaskPlayCompleted:
		return "play_completed"
	case TaskPassCompleted:
		return "pass_completed"
	case TaskFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Task priorities. Higher runs first; equal priorities run in arrival order.
const (
	PriorityLow    = 0
	PriorityNormal = 1
	PriorityHigh   = 2
)

// Task is one queued turn-advance request, bound to the round it was created in.
type Task struct {
	ID        uuid.UUID
	Type      TaskType
	Target    int
	Round     int
	Priority  int
	Timestamp time.Time
	Reason    string
}

type queuedTask struct {
	task Task
	seq  uint64
}

// taskQueue orders tasks by priority, then arrival. At most one task exists per
// (Type, Round, Target).
type taskQueue struct {
	items []queuedTask
	seq   uint64
}

// push adds t, or merges it into an equivalent queued task. It reports whether
// a new entry was created.
func (q *taskQueue) push(t Task) bool {
	for i := range q.items {
		cur := q.items[i].task
		if cur.Type != t.Type || cur.Round != t.Round || cur.Target != t.Target {
			continue
		}
		if t.Priority > cur.Priority {
			q.seq++
			q.items[i] = queuedTask{task: t, seq: q.seq}
		}
		return false
	}
	q.seq++
	q.items = append(q.items, queuedTask{task: t, seq: q.seq})
	return true
}

func (q *taskQueue) pop() (Task, bool) {
	if len(q.items) == 0 {
		return Task{}, false
	}
	best := 0
	for i := 1; i < len(q.items); i++ {
		a, b := q.items[i], q.items[best]
		if a.task.Priority > b.task.Priority || (a.task.Priority == b.task.Priority && a.seq < b.seq) {
			best = i
		}
	}
	t := q.items[best].task
	q.items = append(q.items[:best], q.items[best+1:]...)
	return t, true
}

func (q *taskQueue) len() int { return len(q.items) }

func (q *taskQueue) reset() { q.items = nil }
