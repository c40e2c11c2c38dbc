package timed

import (
	"time"

	"github.com/flemzord/cronsync/internal/job"
)

// Event describes a finished execution.
type Event struct {
	ExecutionID       string       `json:"execution_id"`
	Identity          job.Identity `json:"identity"`
	Type              string       `json:"type"`
	Manual            bool         `json:"manual"`
	FireTime          time.Time    `json:"fire_time"`
	ScheduledFireTime time.Time    `json:"scheduled_fire_time"`
	FinishTime        time.Time    `json:"finish_time"`
	DurationMillis    int64        `json:"duration_ms"`
	Success           bool         `json:"success"`
	ErrorClass        string       `json:"error_class,omitempty"`
	ErrorMessage      string       `json:"error_message,omitempty"`
}

func newEvent(jc *job.Context, res Result, scheduled, finish time.Time) Event {
	ev := Event{
		ExecutionID:       res.ExecutionID,
		Identity:          jc.Identity,
		Type:              jc.Type,
		Manual:            jc.Manual,
		FireTime:          jc.FireTime,
		ScheduledFireTime: scheduled,
		FinishTime:        finish,
		DurationMillis:    res.Duration.Milliseconds(),
		Success:           res.Succeeded(),
	}
	if res.Failure != nil {
		ev.ErrorClass = res.Failure.Class
		ev.ErrorMessage = res.Failure.Message
	}
	return ev
}

// Subscribe returns a channel receiving every subsequent Event and a function
// that cancels the subscription. Events are dropped when the channel buffer
// is full.
func (w *Wrapper) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = ch
	w.mu.Unlock()

	var once bool
	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if once {
			return
		}
		once = true
		delete(w.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscriptions.
func (w *Wrapper) Subscribers() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subs)
}

func (w *Wrapper) publish(ev Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
