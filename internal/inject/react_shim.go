package inject

import (
	"context"
	"fmt"
)

// ReactShimVersion identifies the event sequence implemented by ReactShim.
const ReactShimVersion = "react-value-tracker/v1"

// ReactShim targets frameworks that shadow the native value setter and diff
// against an internal value tracker to decide whether an input changed.
//
// Sequence:
//  1. native setter
//  2. focus (simulated)
//  3. compositionstart, compositionend(text)
//  4. input insertText(text)
//  5. change (simulated)
//  6. tracker reset + plain input, when a tracker exists
type ReactShim struct{}

// Version implements Shim.
func (ReactShim) Version() string { return ReactShimVersion }

// Sequence returns the events dispatched after the native value is set.
func (ReactShim) Sequence(text string) []Event {
	return []Event{
		{Kind: EventFocus, Bubbles: true, Composed: true, Simulated: true},
		{Kind: EventCompositionStart, Bubbles: true},
		{Kind: EventCompositionEnd, Bubbles: true, Data: text},
		{Kind: EventInput, Bubbles: true, Composed: true, InputType: "insertText", Data: text, IsComposing: false},
		{Kind: EventChange, Bubbles: true, Simulated: true},
	}
}

// Inject implements Shim.
func (s ReactShim) Inject(ctx context.Context, ctrl TextControl, text string) error {
	if err := ctrl.SetNativeValue(ctx, text); err != nil {
		return fmt.Errorf("set native value: %w", err)
	}
	for _, ev := range s.Sequence(text) {
		if err := ctrl.Dispatch(ctx, ev); err != nil {
			return fmt.Errorf("dispatch %s: %w", ev.Kind, err)
		}
	}

	tracked, err := ctrl.ResetValueTracker(ctx)
	if err != nil {
		return fmt.Errorf("reset value tracker: %w", err)
	}
	if tracked {
		if err := ctrl.Dispatch(ctx, Event{Kind: EventInput, Bubbles: true}); err != nil {
			return fmt.Errorf("dispatch tracker input: %w", err)
		}
	}
	return nil
}
