package preprocess

type BlockKind string

const (
	KindText   BlockKind = "text"
	KindTable  BlockKind = "table"
	KindFigure BlockKind = "figure"
)

// Block is one extracted content unit: a *TextBlock, *TableBlock or *FigureBlock.
type Block interface {
	Kind() BlockKind
	Page() int
	Batch() int
	Markup() string
	PlainText() string
	isBlock()
}

// TextBlock covers every category that is not a table or a figure.
type TextBlock struct {
	PageNum    int
	BatchIndex int
	Category   string
	Text       string
	HTML       string
}

type TableBlock struct {
	PageNum    int
	BatchIndex int
	Text       string
	HTML       string
	Box        *NormBox
}

// FigureBlock carries the saved crop when the element had a usable bounding box.
type FigureBlock struct {
	PageNum    int
	BatchIndex int
	Text       string
	HTML       string
	Box        *NormBox
	ImagePath  string
}

func (b *TextBlock) Kind() BlockKind   { return KindText }
func (b *TextBlock) Page() int         { return b.PageNum }
func (b *TextBlock) Batch() int        { return b.BatchIndex }
func (b *TextBlock) Markup() string    { return b.HTML }
func (b *TextBlock) PlainText() string { return b.Text }
func (*TextBlock) isBlock()            {}

func (b *TableBlock) Kind() BlockKind   { return KindTable }
func (b *TableBlock) Page() int         { return b.PageNum }
func (b *TableBlock) Batch() int        { return b.BatchIndex }
func (b *TableBlock) Markup() string    { return b.HTML }
func (b *TableBlock) PlainText() string { return b.Text }
func (*TableBlock) isBlock()            {}

func (b *FigureBlock) Kind() BlockKind   { return KindFigure }
func (b *FigureBlock) Page() int         { return b.PageNum }
func (b *FigureBlock) Batch() int        { return b.BatchIndex }
func (b *FigureBlock) Markup() string    { return b.HTML }
func (b *FigureBlock) PlainText() string { return b.Text }
func (*FigureBlock) isBlock()            {}

// BlockView is the flat JSON form of a Block.
type BlockView struct {
	Type      BlockKind `json:"block_type"`
	Page      int       `json:"page_num"`
	Batch     int       `json:"batch_index"`
	Text      string    `json:"text,omitempty"`
	HTML      string    `json:"html,omitempty"`
	Box       *NormBox  `json:"coords,omitempty"`
	ImagePath string    `json:"image_path,omitempty"`
}

func View(b Block) BlockView {
	v := BlockView{Type: b.Kind(), Page: b.Page(), Batch: b.Batch(), Text: b.PlainText(), HTML: b.Markup()}
	switch t := b.(type) {
	case *TableBlock:
		v.Box = t.Box
	case *FigureBlock:
		v.Box = t.Box
		v.ImagePath = t.ImagePath
	}
	return v
}

// BlocksForBatch keeps the blocks extracted from one batch, in order.
func BlocksForBatch(blocks []Block, batch int) []Block {
	var out []Block
	for _, b := range blocks {
		if b.Batch() == batch {
			out = append(out, b)
		}
	}
	return out
}
