// Package inject submits text through a page's chat input in a way that
// keeps a reactive UI framework's internal state in sync with the DOM.
package inject

import (
	"context"
	"fmt"

	"grokrelay/internal/logging"
)

// EventKind names a synthetic DOM event type.
type EventKind string

const (
	EventFocus            EventKind = "focus"
	EventCompositionStart EventKind = "compositionstart"
	EventCompositionEnd   EventKind = "compositionend"
	EventInput            EventKind = "input"
	EventChange           EventKind = "change"
)

// Event describes one synthetic event to dispatch on a control.
type Event struct {
	Kind        EventKind
	Data        string // CompositionEvent/InputEvent data
	InputType   string // InputEvent inputType
	IsComposing bool
	Bubbles     bool
	Composed    bool
	// Simulated sets the ad-hoc "simulated" property some frameworks check.
	Simulated bool
}

// TextControl is a text-entry element on the page.
type TextControl interface {
	// SetNativeValue assigns the value through the platform's own value
	// setter, bypassing any framework override on the instance.
	SetNativeValue(ctx context.Context, value string) error
	Dispatch(ctx context.Context, ev Event) error
	// ResetValueTracker clears the framework's shadow copy of the value.
	// It reports false when the control has no tracker.
	ResetValueTracker(ctx context.Context) (bool, error)
}

// SubmitControl is the element that sends the composed message.
type SubmitControl interface {
	Activate(ctx context.Context) error
}

// Locator finds the page's controls. A nil control means it is absent.
type Locator interface {
	Controls(ctx context.Context) (TextControl, SubmitControl, error)
}

// Shim writes text into a reactive control. Implementations are tied to a
// specific framework behaviour and are swapped when the page changes.
type Shim interface {
	Version() string
	Inject(ctx context.Context, ctrl TextControl, text string) error
}

// Injector submits text through the page's input and submit controls.
type Injector struct {
	locator Locator
	shim    Shim
}

// New creates an injector. A nil shim selects ReactShim.
func New(locator Locator, shim Shim) *Injector {
	if shim == nil {
		shim = ReactShim{}
	}
	return &Injector{locator: locator, shim: shim}
}

// Submit writes text into the input and activates the submit control once.
// It returns false without touching the page when either control is missing.
func (i *Injector) Submit(ctx context.Context, text string) (bool, error) {
	log := logging.Get(logging.CategoryInject)

	input, submit, err := i.locator.Controls(ctx)
	if err != nil {
		return false, fmt.Errorf("locate chat controls: %w", err)
	}
	if input == nil || submit == nil {
		log.Error("chat elements not found (input=%t submit=%t)", input != nil, submit != nil)
		return false, nil
	}

	if err := i.shim.Inject(ctx, input, text); err != nil {
		return false, fmt.Errorf("inject text (%s): %w", i.shim.Version(), err)
	}
	if err := submit.Activate(ctx); err != nil {
		return false, fmt.Errorf("activate submit: %w", err)
	}
	log.Debug("submitted %d chars via %s", len(text), i.shim.Version())
	return true, nil
}
