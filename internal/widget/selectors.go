package widget

// Widget DOM and storage layout.
// These are isolated here because the vendor changes the widget frequently.
// Update these when scraping breaks.

const (
	// Custom element hosting the chat UI. Its shadow root contains a second
	// shadow host for the message list.
	WidgetHost     = `call-us`
	ChatWindowHost = `call-us-chat`

	// Message list selectors inside the inner shadow root
	MessageItem        = `.message`
	AgentMessageMarker = `.message-agent`
	MessageText        = `.message-text`

	// Composer selectors inside the inner shadow root
	ComposerInput = `textarea`
	SendButton    = `button[type="submit"], .send-button`
)

// localStorage keys the widget reads on load to resume a visitor session.
const (
	StorageSessionKey  = "callus.session"
	StorageVisitorKey  = "callus.visitor"
	StorageChatOpenKey = "callus.chatOpen"
)
