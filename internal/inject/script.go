package inject

// Element-scoped scripts used by DOM-backed controls. Each is evaluated
// with `this` bound to the target element.
const (
	// SetNativeValueJS calls the prototype's value setter directly so a
	// framework-level override on the instance does not swallow the write.
	SetNativeValueJS = `(value) => {
		const proto = this instanceof HTMLTextAreaElement
			? HTMLTextAreaElement.prototype
			: HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		desc.set.call(this, value);
	}`

	// DispatchJS builds and dispatches one synthetic event.
	DispatchJS = `(kind, init, simulated) => {
		let ev;
		switch (kind) {
		case 'focus':
			ev = new FocusEvent('focus', init);
			break;
		case 'compositionstart':
		case 'compositionend':
			ev = new CompositionEvent(kind, init);
			break;
		case 'input':
			ev = init.inputType !== undefined ? new InputEvent('input', init) : new Event('input', init);
			break;
		default:
			ev = new Event(kind, init);
		}
		if (simulated) {
			ev.simulated = true;
		}
		this.dispatchEvent(ev);
	}`

	// ResetValueTrackerJS clears the framework's shadow value, reporting
	// whether a tracker was present.
	ResetValueTrackerJS = `() => {
		const tracker = this._valueTracker;
		if (!tracker || typeof tracker.setValue !== 'function') {
			return false;
		}
		tracker.setValue('');
		return true;
	}`

	// ActivateJS clicks the element programmatically.
	ActivateJS = `() => { this.click(); }`
)

// Init returns the event's constructor init dictionary.
func (e Event) Init() map[string]interface{} {
	init := map[string]interface{}{
		"bubbles": e.Bubbles,
	}
	if e.Composed {
		init["composed"] = true
	}
	switch e.Kind {
	case EventCompositionEnd:
		init["data"] = e.Data
	case EventInput:
		if e.InputType != "" {
			init["inputType"] = e.InputType
			init["data"] = e.Data
			init["isComposing"] = e.IsComposing
		}
	}
	return init
}
