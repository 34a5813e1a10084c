package browser

import (
	"context"
	"fmt"

	"grokrelay/internal/inject"
	"grokrelay/internal/observe"

	"github.com/go-rod/rod"
)

// Selectors locate the chat controls and the reply markup.
type Selectors struct {
	Input  string
	Submit string
	observe.Selectors
}

// ChatPage adapts a rod page to inject.Locator and observe.Source.
type ChatPage struct {
	page *rod.Page
	sel  Selectors
}

// NewChatPage wraps page. Empty reply selectors fall back to the observe
// defaults; empty control selectors fall back to textarea and the form's
// submit button.
func NewChatPage(page *rod.Page, sel Selectors) *ChatPage {
	if sel.Input == "" {
		sel.Input = "textarea"
	}
	if sel.Submit == "" {
		sel.Submit = `button[type="submit"]`
	}
	sel.Selectors = sel.Selectors.WithDefaults()
	return &ChatPage{page: page, sel: sel}
}

// Controls implements inject.Locator. A missing element is reported as a
// nil control, not an error.
func (c *ChatPage) Controls(ctx context.Context) (inject.TextControl, inject.SubmitControl, error) {
	p := c.page.Context(ctx)

	var input inject.TextControl
	has, el, err := p.Has(c.sel.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", c.sel.Input, err)
	}
	if has {
		input = &element{el: el}
	}

	var submit inject.SubmitControl
	has, el, err = p.Has(c.sel.Submit)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", c.sel.Submit, err)
	}
	if has {
		submit = &element{el: el}
	}
	return input, submit, nil
}

// LastBubble implements observe.Source. The bubble is read from the live
// DOM in a single evaluation.
func (c *ChatPage) LastBubble(ctx context.Context) (*observe.Bubble, error) {
	res, err := c.page.Context(ctx).Eval(observe.LastBubbleJS, c.sel.Selectors)
	if err != nil {
		return nil, fmt.Errorf("read last bubble: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("read last bubble: %w", err)
	}
	return observe.DecodeBubble(raw)
}

// element runs the inject scripts against one DOM node.
type element struct {
	el *rod.Element
}

func (e *element) SetNativeValue(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Eval(inject.SetNativeValueJS, value)
	return err
}

func (e *element) Dispatch(ctx context.Context, ev inject.Event) error {
	_, err := e.el.Context(ctx).Eval(inject.DispatchJS, string(ev.Kind), ev.Init(), ev.Simulated)
	return err
}

func (e *element) ResetValueTracker(ctx context.Context) (bool, error) {
	res, err := e.el.Context(ctx).Eval(inject.ResetValueTrackerJS)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *element) Activate(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(inject.ActivateJS)
	return err
}
