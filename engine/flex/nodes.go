// Package flex renders analysis results as LINE Flex Messages. Nodes
// are typed rather than free-form maps so a malformed card fails at
// compile time, not at the messaging API.
package flex

// Message is the top-level flex message envelope.
type Message struct {
	Type     string  `json:"type"`
	AltText  string  `json:"altText"`
	Contents *Bubble `json:"contents"`
}

// Bubble is a single-card container.
type Bubble struct {
	Type   string `json:"type"`
	Size   string `json:"size,omitempty"`
	Header *Box   `json:"header,omitempty"`
	Body   *Box   `json:"body,omitempty"`
	Footer *Box   `json:"footer,omitempty"`
}

// Node is any component that may appear inside a box.
type Node interface {
	nodeType() string
}

// Box lays out child nodes vertically or horizontally.
type Box struct {
	Type            string `json:"type"`
	Layout          string `json:"layout"`
	Contents        []Node `json:"contents"`
	Spacing         string `json:"spacing,omitempty"`
	Margin          string `json:"margin,omitempty"`
	PaddingAll      string `json:"paddingAll,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

func (b *Box) nodeType() string { return "box" }

// Text is a single text run.
type Text struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Weight   string `json:"weight,omitempty"`
	Size     string `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
	Wrap     bool   `json:"wrap,omitempty"`
	MaxLines int    `json:"maxLines,omitempty"`
	Margin   string `json:"margin,omitempty"`
}

func (t *Text) nodeType() string { return "text" }

// Separator is a horizontal rule.
type Separator struct {
	Type   string `json:"type"`
	Margin string `json:"margin,omitempty"`
	Color  string `json:"color,omitempty"`
}

func (s *Separator) nodeType() string { return "separator" }

// Button carries the card's single tap action.
type Button struct {
	Type   string  `json:"type"`
	Style  string  `json:"style,omitempty"`
	Color  string  `json:"color,omitempty"`
	Height string  `json:"height,omitempty"`
	Action *Action `json:"action"`
}

func (b *Button) nodeType() string { return "button" }

// Action is either a uri deep link or a postback.
type Action struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	URI         string `json:"uri,omitempty"`
	Data        string `json:"data,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
}

func newBox(layout string, contents ...Node) *Box {
	return &Box{Type: "box", Layout: layout, Contents: contents}
}

func newText(text string) *Text {
	return &Text{Type: "text", Text: text, Wrap: true}
}
