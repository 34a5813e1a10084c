package observe

import (
	"encoding/json"
	"fmt"
)

// LastBubbleJS reads the newest message bubble from the live document. It
// takes a Selectors value and resolves to null when there are no bubbles,
// otherwise to a JSON-encoded Bubble. Texts are raw textContent values.
const LastBubbleJS = `(sel) => {
	const bubbles = document.querySelectorAll(sel.messageBubble);
	if (bubbles.length === 0) {
		return null;
	}
	const last = bubbles[bubbles.length - 1];
	const texts = Array.from(last.querySelectorAll(sel.paragraph), (p) => p.textContent);
	const container = last.closest(sel.container);
	const has = (s) => container !== null && container.querySelector(s) !== null;
	return {
		hasContainer: container !== null,
		spinner: has(sel.spinner),
		typing: has(sel.typing),
		shareButton: has(sel.shareButton),
		texts: texts,
	};
}`

// DecodeBubble decodes the result of LastBubbleJS. A null result yields a
// nil Bubble.
func DecodeBubble(raw []byte) (*Bubble, error) {
	var b *Bubble
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bubble: %w", err)
	}
	return b, nil
}
