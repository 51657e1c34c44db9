package models

// NoteType is the closed set of note kinds the cache understands.
type NoteType string

const (
	NoteTypeText          NoteType = "text"
	NoteTypeCode          NoteType = "code"
	NoteTypeRender        NoteType = "render"
	NoteTypeFile          NoteType = "file"
	NoteTypeImage         NoteType = "image"
	NoteTypeSearch        NoteType = "search"
	NoteTypeRelationMap   NoteType = "relationMap"
	NoteTypeBook          NoteType = "book"
	NoteTypeNoteMap       NoteType = "noteMap"
	NoteTypeMermaid       NoteType = "mermaid"
	NoteTypeWebView       NoteType = "webView"
	NoteTypeShortcut      NoteType = "shortcut"
	NoteTypeDoc           NoteType = "doc"
	NoteTypeContentWidget NoteType = "contentWidget"
	NoteTypeLauncher      NoteType = "launcher"
	NoteTypeCanvas        NoteType = "canvas"
	NoteTypeMindMap       NoteType = "mindMap"
)

// Capabilities are the type-specific behaviors consulted outside the UI.
type Capabilities struct {
	// Icon is the default icon class when the note carries no iconClass label.
	Icon string
	// FullWidth marks types rendered without the text column limit.
	FullWidth bool
	// HasContent is false for types whose body is not searchable text.
	HasContent bool
}

var capabilities = map[NoteType]Capabilities{
	NoteTypeText:          {Icon: "bx bx-note", HasContent: true},
	NoteTypeCode:          {Icon: "bx bx-code", HasContent: true},
	NoteTypeRender:        {Icon: "bx bx-extension"},
	NoteTypeFile:          {Icon: "bx bx-file"},
	NoteTypeImage:         {Icon: "bx bx-image"},
	NoteTypeSearch:        {Icon: "bx bx-file-find"},
	NoteTypeRelationMap:   {Icon: "bx bxs-network-chart", FullWidth: true},
	NoteTypeBook:          {Icon: "bx bx-book", HasContent: true},
	NoteTypeNoteMap:       {Icon: "bx bxs-network-chart", FullWidth: true},
	NoteTypeMermaid:       {Icon: "bx bx-selection", HasContent: true},
	NoteTypeWebView:       {Icon: "bx bx-globe-alt", FullWidth: true},
	NoteTypeShortcut:      {Icon: "bx bx-link"},
	NoteTypeDoc:           {Icon: "bx bxs-file-doc", HasContent: true},
	NoteTypeContentWidget: {Icon: "bx bxs-widget"},
	NoteTypeLauncher:      {Icon: "bx bx-link"},
	NoteTypeCanvas:        {Icon: "bx bx-pen", FullWidth: true},
	NoteTypeMindMap:       {Icon: "bx bx-sitemap", FullWidth: true},
}

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool {
	_, ok := capabilities[t]
	return ok
}

// Capabilities returns the capability entry for t. Unknown types get the
// text defaults.
func (t NoteType) Capabilities() Capabilities {
	if c, ok := capabilities[t]; ok {
		return c
	}
	return capabilities[NoteTypeText]
}
