package wa

// MediaKind classifies an attachment by delivery channel
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Media is an attachment reference resolved to a local path or URL
type Media struct {
	Kind     MediaKind
	Path     string
	MIMEType string
	FileName string
}

// ButtonKind is the action type of an interactive button
type ButtonKind string

const (
	ButtonReply ButtonKind = "reply"
	ButtonURL   ButtonKind = "url"
	ButtonCall  ButtonKind = "call"
)

// Button is one interactive button in transport form. Index is assigned by
// the builder and is unique within a message.
type Button struct {
	Index       int
	Kind        ButtonKind
	DisplayText string
	ID          string // reply payload
	URL         string
	PhoneNumber string
}

// Message is the provider-neutral outbound payload. Exactly one shape is
// populated: plain Text, Text+Media, or Text+Buttons.
type Message struct {
	Text    string
	Footer  string
	Media   *Media
	Buttons []Button
}
