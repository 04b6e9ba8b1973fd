package widget

// Every script here is a function declaration invoked through Runtime.callFunctionOn.
// Selectors and user text arrive as arguments.

const deepQueryHelperJS = `
	const deepQueryAll = (root, selector) => {
		const found = [];
		const walk = (node) => {
			if (!node) return;
			node.querySelectorAll(selector).forEach(el => found.push(el));
			node.querySelectorAll('*').forEach(el => {
				if (el.shadowRoot) walk(el.shadowRoot);
			});
		};
		walk(root);
		return found;
	};
`

const extractAgentMessagesJS = `function(hostSelector, agentSelector, textSelector) {
	` + deepQueryHelperJS + `
	const host = document.querySelector(hostSelector);
	if (!host || !host.shadowRoot) {
		throw new Error('chat widget not attached yet');
	}
	const results = [];
	deepQueryAll(host.shadowRoot, agentSelector).forEach(el => {
		const textEl = el.querySelector(textSelector) || el;
		const text = (textEl.innerText || textEl.textContent || '').trim();
		if (text) results.push(text);
	});
	return results;
}`

const submitMessageJS = `async function(hostSelector, inputSelector, sendSelector, text) {
	` + deepQueryHelperJS + `
	const host = document.querySelector(hostSelector);
	if (!host || !host.shadowRoot) return false;

	const input = deepQueryAll(host.shadowRoot, inputSelector)[0];
	if (!input) return false;

	input.focus();
	const setter = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(input), 'value').set;
	setter.call(input, text);
	input.dispatchEvent(new Event('input', { bubbles: true }));
	input.dispatchEvent(new Event('change', { bubbles: true }));

	await new Promise(resolve => setTimeout(resolve, 100));

	const button = deepQueryAll(host.shadowRoot, sendSelector)[0];
	if (button && !button.disabled) {
		button.click();
	} else {
		const opts = { key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true };
		input.dispatchEvent(new KeyboardEvent('keydown', opts));
		input.dispatchEvent(new KeyboardEvent('keypress', opts));
		input.dispatchEvent(new KeyboardEvent('keyup', opts));
	}
	return true;
}`

const setStorageItemJS = `function(key, value) {
	window.localStorage.setItem(key, value);
	return true;
}`
