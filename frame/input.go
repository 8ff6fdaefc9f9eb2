package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/mandelbrot/viewport"
)

// ScriptedInput replays a fixed sequence of per-frame events and reports Quit
// once the sequence is exhausted. It drives headless rendering and tests.
type ScriptedInput struct {
	events []Events
	next   int
}

// NewScriptedInput returns an input that replays events in order.
func NewScriptedInput(events ...Events) *ScriptedInput {
	return &ScriptedInput{events: events}
}

// Poll returns the next scripted event, or Quit when none remain.
func (in *ScriptedInput) Poll() Events {
	if in.next >= len(in.events) {
		return Events{Quit: true}
	}
	ev := in.events[in.next]
	in.next++
	return ev
}

// Remaining returns the number of events not yet polled.
func (in *ScriptedInput) Remaining() int { return len(in.events) - in.next }

// ParseScript parses a comma-separated key script into a ScriptedInput.
//
// Each step is an action with an optional repeat count, for example
// "zoom-in*40,right*10,idle*5". Actions are up, down, left, right, zoom-in,
// zoom-out, idle and quit. Keys may be combined with '+' ("up+zoom-in*3").
// A step "resize=WxH" delivers one resize event of that size.
func ParseScript(script string) (*ScriptedInput, error) {
	var events []Events
	for _, raw := range strings.Split(script, ",") {
		step := strings.TrimSpace(raw)
		if step == "" {
			continue
		}

		count := 1
		if i := strings.LastIndexByte(step, '*'); i >= 0 {
			n, err := strconv.Atoi(step[i+1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("frame: script step %q: invalid repeat count", step)
			}
			count = n
			step = step[:i]
		}

		ev, err := parseStep(step)
		if err != nil {
			return nil, err
		}
		for range count {
			events = append(events, ev)
		}
	}
	return NewScriptedInput(events...), nil
}

func parseStep(step string) (Events, error) {
	if dims, ok := strings.CutPrefix(step, "resize="); ok {
		w, h, found := strings.Cut(dims, "x")
		width, errW := strconv.Atoi(w)
		height, errH := strconv.Atoi(h)
		if !found || errW != nil || errH != nil {
			return Events{}, fmt.Errorf("frame: script step %q: want resize=WxH", step)
		}
		return Events{Resized: true, Size: Size{Width: width, Height: height}}, nil
	}

	var ev Events
	for _, key := range strings.Split(step, "+") {
		if err := setKey(&ev, &ev.Keys, key); err != nil {
			return Events{}, err
		}
	}
	return ev, nil
}

func setKey(ev *Events, k *viewport.Keys, key string) error {
	switch strings.TrimSpace(key) {
	case "up":
		k.Up = true
	case "down":
		k.Down = true
	case "left":
		k.Left = true
	case "right":
		k.Right = true
	case "zoom-in", "in":
		k.ZoomIn = true
	case "zoom-out", "out":
		k.ZoomOut = true
	case "idle":
	case "quit":
		ev.Quit = true
	default:
		return fmt.Errorf("frame: unknown script action %q", key)
	}
	return nil
}
