package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/tickloop/tickloop/pkg/event"
)

// wireEvent is the JSON form shared by the stdout stream and the
// websocket hub.
type wireEvent struct {
	Kind string         `json:"kind"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data"`
}

func marshalEvent(ev event.Event) ([]byte, error) {
	w := wireEvent{Kind: string(ev.Kind()), Time: ev.When()}
	switch e := ev.(type) {
	case event.BucketRefill:
		w.Data = map[string]any{"key": e.Key, "added": e.Added, "tokens": e.Tokens, "capacity": e.Capacity}
	case event.BucketApprove:
		w.Data = map[string]any{"key": e.Key, "cost": e.Cost, "remaining": e.Remaining}
	case event.BucketDeny:
		w.Data = map[string]any{"key": e.Key, "cost": e.Cost, "tokens": e.Tokens}
	case event.SchedulerDue:
		w.Data = map[string]any{"id": e.ID, "slot": e.Slot, "latency_ns": e.Latency.Nanoseconds()}
	case event.DriftWarning:
		w.Data = map[string]any{"drift_ms": e.Drift.Milliseconds(), "tolerance_ms": e.Tolerance.Milliseconds(), "slot": e.Slot}
	case event.InvariantFailure:
		w.Data = map[string]any{"id": e.ID, "error": e.Err.Error()}
	default:
		w.Data = map[string]any{}
	}
	return json.Marshal(w)
}

// printer writes the event stream to stdout: human-readable lines on a
// terminal, JSONL when piped.
type printer struct {
	out *bufio.Writer
	tty bool
}

func newPrinter() *printer {
	return &printer{
		out: bufio.NewWriterSize(os.Stdout, 32768),
		tty: isatty.IsTerminal(os.Stdout.Fd()),
	}
}

func (p *printer) print(ev event.Event) {
	if p.tty {
		fmt.Fprintf(p.out, "%s %s %s\n",
			ev.When().Format("15:04:05.000"), ev.Kind(), describe(ev))
	} else if payload, err := marshalEvent(ev); err == nil {
		p.out.Write(payload)
		p.out.WriteByte('\n')
	}
	p.out.Flush()
}

func describe(ev event.Event) string {
	switch e := ev.(type) {
	case event.BucketRefill:
		return fmt.Sprintf("key=%s added=%.2f tokens=%.2f", e.Key, e.Added, e.Tokens)
	case event.BucketApprove:
		return fmt.Sprintf("key=%s cost=%.1f remaining=%.2f", e.Key, e.Cost, e.Remaining)
	case event.BucketDeny:
		return fmt.Sprintf("key=%s cost=%.1f tokens=%.2f", e.Key, e.Cost, e.Tokens)
	case event.SchedulerDue:
		return fmt.Sprintf("id=%s slot=%d latency=%v", e.ID, e.Slot, e.Latency)
	case event.DriftWarning:
		return fmt.Sprintf("drift=%v tolerance=%v slot=%d", e.Drift, e.Tolerance, e.Slot)
	case event.InvariantFailure:
		return fmt.Sprintf("id=%s err=%v", e.ID, e.Err)
	}
	return ""
}
