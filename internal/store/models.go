package store

import (
	"fmt"
	"time"
)

type Scrapbook struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	PageWidth    int
	PageHeight   int
	PageSizeName string
	IsPublic     bool
	Tags         []string
	CoverImage   string
	ViewCount    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Page struct {
	ID          string
	ScrapbookID string
	Order       int
	Background  Background
	Width       int
	Height      int
}

type Element struct {
	ID         string
	PageID     string
	Type       string
	Position   Position
	Size       Size
	Transform  Transform
	Opacity    float64
	ZIndex     int
	Locked     bool
	Visible    bool
	Shadow     *Shadow
	Border     *Border
	Properties Properties
}

// PageWithElements is a page plus its elements in paint order.
type PageWithElements struct {
	Page
	Elements []Element
}

// Aggregate is a scrapbook with its full page/element tree, pages in
// display order and elements in paint order.
type Aggregate struct {
	Scrapbook
	Pages []PageWithElements
}

type Collaborator struct {
	ScrapbookID string
	UserID      string
	Role        string
	CreatedAt   time.Time
}

type Comment struct {
	ID          string
	ScrapbookID string
	PageID      string // empty for scrapbook-level comments
	UserID      string
	Content     string
	Position    *Position
	Resolved    bool
	CreatedAt   time.Time
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Transform struct {
	Rotation float64 `json:"rotation"`
	SkewX    float64 `json:"skewX"`
	SkewY    float64 `json:"skewY"`
}

type Shadow struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Blur    float64 `json:"blur"`
	Color   string  `json:"color"`
}

type Border struct {
	Width  float64 `json:"width"`
	Color  string  `json:"color"`
	Style  string  `json:"style"`
	Radius float64 `json:"radius"`
}

// Background kinds.
const (
	BackgroundColor    = "color"
	BackgroundGradient = "gradient"
	BackgroundPattern  = "pattern"
	BackgroundImage    = "image"
)

// Background is a tagged variant: Type selects which payload field applies.
// Color and image backgrounds carry their payload in Value (a hex color or
// an image URL respectively).
type Background struct {
	Type     string    `json:"type"`
	Value    string    `json:"value,omitempty"`
	Gradient *Gradient `json:"gradient,omitempty"`
	Pattern  *Pattern  `json:"pattern,omitempty"`
}

type Gradient struct {
	Angle float64        `json:"angle"`
	Stops []GradientStop `json:"stops"`
}

type GradientStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

type Pattern struct {
	Name  string  `json:"name"`
	Color string  `json:"color"`
	Scale float64 `json:"scale"`
}

func (b Background) Validate() error {
	switch b.Type {
	case BackgroundColor:
		if b.Value == "" {
			return fmt.Errorf("color background requires a value")
		}
	case BackgroundImage:
		if b.Value == "" {
			return fmt.Errorf("image background requires a value")
		}
	case BackgroundGradient:
		if b.Gradient == nil || len(b.Gradient.Stops) < 2 {
			return fmt.Errorf("gradient background requires at least two stops")
		}
	case BackgroundPattern:
		if b.Pattern == nil || b.Pattern.Name == "" {
			return fmt.Errorf("pattern background requires a pattern name")
		}
	default:
		return fmt.Errorf("unknown background type %q", b.Type)
	}
	return nil
}

// Element types.
const (
	ElementPhoto   = "photo"
	ElementText    = "text"
	ElementShape   = "shape"
	ElementSticker = "sticker"
	ElementGif     = "gif"
	ElementQRCode  = "qrcode"
)

// Properties is the type-specific payload of an element. Exactly one field
// must be set, and it must match Element.Type.
type Properties struct {
	Photo   *PhotoProps   `json:"photo,omitempty"`
	Text    *TextProps    `json:"text,omitempty"`
	Shape   *ShapeProps   `json:"shape,omitempty"`
	Sticker *StickerProps `json:"sticker,omitempty"`
	Gif     *GifProps     `json:"gif,omitempty"`
	QRCode  *QRCodeProps  `json:"qrcode,omitempty"`
}

type PhotoProps struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type TextProps struct {
	Content    string  `json:"content"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Color      string  `json:"color,omitempty"`
	Align      string  `json:"align,omitempty"`
	Bold       bool    `json:"bold,omitempty"`
	Italic     bool    `json:"italic,omitempty"`
}

type ShapeProps struct {
	Shape       string  `json:"shape"`
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
}

type StickerProps struct {
	StickerID string `json:"stickerId"`
	URL       string `json:"url,omitempty"`
}

type GifProps struct {
	URL string `json:"url"`
}

type QRCodeProps struct {
	Data       string `json:"data"`
	Foreground string `json:"foreground,omitempty"`
	Background string `json:"background,omitempty"`
}

// Validate checks that the element carries exactly the payload its type
// demands and that its visual fields are in range.
func (e Element) Validate() error {
	if e.Opacity < 0 || e.Opacity > 1 {
		return fmt.Errorf("opacity must be within [0, 1]")
	}
	var want, set int
	checks := []struct {
		typ string
		ok  bool
	}{
		{ElementPhoto, e.Properties.Photo != nil},
		{ElementText, e.Properties.Text != nil},
		{ElementShape, e.Properties.Shape != nil},
		{ElementSticker, e.Properties.Sticker != nil},
		{ElementGif, e.Properties.Gif != nil},
		{ElementQRCode, e.Properties.QRCode != nil},
	}
	known := false
	for _, check := range checks {
		if check.ok {
			set++
		}
		if check.typ == e.Type {
			known = true
			if check.ok {
				want = 1
			}
		}
	}
	if !known {
		return fmt.Errorf("unknown element type %q", e.Type)
	}
	if set != 1 || want != 1 {
		return fmt.Errorf("element of type %q requires exactly its own properties payload", e.Type)
	}
	return nil
}

// ScrapbookPatch is a sparse update; nil fields are left untouched.
type ScrapbookPatch struct {
	Title       *string
	Description *string
	IsPublic    *bool
	Tags        *[]string
	CoverImage  *string
}

func (p ScrapbookPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.IsPublic == nil && p.Tags == nil && p.CoverImage == nil
}

// PagePatch is a sparse page update.
type PagePatch struct {
	Background *Background
	Width      *int
	Height     *int
}

// ElementPatch is a sparse element update. Nil means unchanged.
type ElementPatch struct {
	Position   *Position
	Size       *Size
	Transform  *Transform
	Opacity    *float64
	ZIndex     *int
	Locked     *bool
	Visible    *bool
	Shadow     *Shadow
	Border     *Border
	Properties *Properties
}

// CommentPatch is a sparse comment update.
type CommentPatch struct {
	Content  *string
	Resolved *bool
}
