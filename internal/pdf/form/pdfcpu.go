package form

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Bounds recursion through page trees and field hierarchies.
const maxTreeDepth = 32

// Field flag bits (PDF 32000-1, 12.7.4.2.1).
const (
	flagRadio      = 1 << 15
	flagPushButton = 1 << 16
)

var disableConfigDir sync.Once

// PDFCPUOpener opens documents with pdfcpu.
type PDFCPUOpener struct{}

// NewPDFCPUOpener creates an opener. pdfcpu's on-disk configuration directory
// is disabled so that opening never touches the user's home directory.
func NewPDFCPUOpener() *PDFCPUOpener {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFCPUOpener{}
}

// Open reads data into a fresh pdfcpu context.
func (o *PDFCPUOpener) Open(data []byte) (Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}

	pages, err := collectPages(ctx)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	return &pdfcpuDocument{ctx: ctx, pages: pages}, nil
}

// collectPages returns the page dictionaries in document order.
func collectPages(ctx *model.Context) ([]types.Dict, error) {
	root, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	pagesObj, found := root.Find("Pages")
	if !found {
		return nil, errors.New("catalog has no page tree")
	}

	var pages []types.Dict
	if err := walkPageTree(ctx, pagesObj, 0, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func walkPageTree(ctx *model.Context, obj types.Object, depth int, out *[]types.Dict) error {
	if depth > maxTreeDepth {
		return errors.New("page tree too deep")
	}

	node, err := ctx.DereferenceDict(obj)
	if err != nil {
		return fmt.Errorf("failed to dereference page tree node: %w", err)
	}
	if node == nil {
		return nil
	}

	kidsObj, found := node.Find("Kids")
	if !found || nameEntry(ctx, node, "Type") == "Page" {
		*out = append(*out, node)
		return nil
	}

	kids, err := ctx.DereferenceArray(kidsObj)
	if err != nil {
		return fmt.Errorf("failed to dereference page kids: %w", err)
	}
	for _, kid := range kids {
		if err := walkPageTree(ctx, kid, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

type pdfcpuDocument struct {
	ctx   *model.Context
	pages []types.Dict
}

func (d *pdfcpuDocument) PageCount() int {
	return len(d.pages)
}

func (d *pdfcpuDocument) Widgets(page int) ([]Widget, error) {
	if d.ctx == nil {
		return nil, &Error{Op: "widgets", Err: ErrClosed}
	}
	if page < 1 || page > len(d.pages) {
		return nil, &Error{Op: "widgets", Err: fmt.Errorf("%w: %d (document has %d pages)", ErrPageRange, page, len(d.pages))}
	}

	annotsObj, found := d.pages[page-1].Find("Annots")
	if !found {
		return nil, nil
	}
	annots, err := d.ctx.DereferenceArray(annotsObj)
	if err != nil {
		return nil, &Error{Op: "widgets", Err: fmt.Errorf("failed to dereference annotations: %w", err)}
	}

	var widgets []Widget
	for _, a := range annots {
		annot, err := d.ctx.DereferenceDict(a)
		if err != nil || annot == nil {
			continue
		}
		if nameEntry(d.ctx, annot, "Subtype") != "Widget" {
			continue
		}
		widgets = append(widgets, d.newWidget(annot))
	}
	return widgets, nil
}

func (d *pdfcpuDocument) newWidget(annot types.Dict) *pdfcpuWidget {
	w := &pdfcpuWidget{doc: d, annot: annot}

	// A widget either is its field (merged dictionary) or is a kid of it.
	switch {
	case hasKey(annot, "T"):
		w.field = annot
	default:
		if p, found := annot.Find("Parent"); found {
			if parent, err := d.ctx.DereferenceDict(p); err == nil && parent != nil {
				w.field = parent
			}
		}
	}
	if w.field == nil {
		w.field = annot
	}

	w.name = d.qualifiedName(w.field)
	w.kind = d.fieldKind(w.field)
	return w
}

// qualifiedName joins the partial names of a field and its ancestors with dots.
func (d *pdfcpuDocument) qualifiedName(field types.Dict) string {
	var parts []string
	node := field
	for depth := 0; node != nil && depth <= maxTreeDepth; depth++ {
		if t, found := node.Find("T"); found {
			if name, err := d.ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil && name != "" {
				parts = append([]string{name}, parts...)
			}
		}
		node = d.parent(node)
	}
	return strings.Join(parts, ".")
}

func (d *pdfcpuDocument) parent(node types.Dict) types.Dict {
	p, found := node.Find("Parent")
	if !found {
		return nil
	}
	parent, err := d.ctx.DereferenceDict(p)
	if err != nil {
		return nil
	}
	return parent
}

// inherited looks key up on the field and then on its ancestors.
func (d *pdfcpuDocument) inherited(field types.Dict, key string) (types.Object, bool) {
	node := field
	for depth := 0; node != nil && depth <= maxTreeDepth; depth++ {
		if obj, found := node.Find(key); found && obj != nil {
			return obj, true
		}
		node = d.parent(node)
	}
	return nil, false
}

func (d *pdfcpuDocument) fieldKind(field types.Dict) Kind {
	ftObj, found := d.inherited(field, "FT")
	if !found {
		return KindUnknown
	}
	ft, err := d.ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return KindUnknown
	}

	switch ft {
	case "Tx":
		return KindText
	case "Ch":
		return KindChoice
	case "Sig":
		return KindSignature
	case "Btn":
		flags := 0
		if ffObj, found := d.inherited(field, "Ff"); found {
			if ff, err := d.ctx.DereferenceInteger(ffObj); err == nil && ff != nil {
				flags = int(*ff)
			}
		}
		switch {
		case flags&flagPushButton != 0:
			return KindButton
		case flags&flagRadio != 0:
			return KindRadio
		default:
			return KindCheckbox
		}
	default:
		return KindUnknown
	}
}

func (d *pdfcpuDocument) acroForm() (types.Dict, error) {
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	obj, found := root.Find("AcroForm")
	if !found {
		return nil, ErrNoAcroForm
	}
	acro, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acro == nil {
		return nil, ErrNoAcroForm
	}
	return acro, nil
}

func (d *pdfcpuDocument) SetNeedAppearances(need bool) error {
	if d.ctx == nil {
		return &Error{Op: "need_appearances", Err: ErrClosed}
	}
	acro, err := d.acroForm()
	if err != nil {
		return &Error{Op: "need_appearances", Err: err}
	}
	acro["NeedAppearances"] = types.Boolean(need)
	return nil
}

func (d *pdfcpuDocument) Bytes() ([]byte, error) {
	if d.ctx == nil {
		return nil, &Error{Op: "write", Err: ErrClosed}
	}
	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, &Error{Op: "write", Err: fmt.Errorf("failed to write PDF: %w", err)}
	}
	return buf.Bytes(), nil
}

func (d *pdfcpuDocument) Close() error {
	d.ctx = nil
	d.pages = nil
	return nil
}

type pdfcpuWidget struct {
	doc   *pdfcpuDocument
	annot types.Dict
	field types.Dict
	name  string
	kind  Kind
}

func (w *pdfcpuWidget) Name() string { return w.name }

func (w *pdfcpuWidget) Kind() Kind { return w.kind }

func (w *pdfcpuWidget) Value() string {
	ctx := w.doc.ctx
	if ctx == nil {
		return ""
	}
	obj, found := w.field.Find("V")
	if !found || obj == nil {
		return ""
	}
	if s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil); err == nil {
		return s
	}
	if n, err := ctx.DereferenceName(obj, model.V10, nil); err == nil {
		return string(n)
	}
	return ""
}

func (w *pdfcpuWidget) SetValue(value string) error {
	if w.doc.ctx == nil {
		return &Error{Op: "set", Field: w.name, Err: ErrClosed}
	}

	switch w.kind {
	case KindCheckbox:
		state := "Off"
		if isOn(value) {
			on, err := w.onState()
			if err != nil {
				return &Error{Op: "set", Field: w.name, Err: err}
			}
			state = on
		}
		w.field["V"] = types.Name(state)
		w.annot["AS"] = types.Name(state)
	case KindRadio:
		on, err := w.onState()
		if err != nil {
			return &Error{Op: "set", Field: w.name, Err: err}
		}
		switch {
		case value == on:
			w.field["V"] = types.Name(on)
			w.annot["AS"] = types.Name(on)
		case !isOn(value):
			w.field["V"] = types.Name("Off")
			w.annot["AS"] = types.Name("Off")
		default:
			w.annot["AS"] = types.Name("Off")
		}
	case KindButton, KindSignature:
		return &Error{Op: "set", Field: w.name, Err: fmt.Errorf("%w: %s", ErrUnsupportedField, w.kind)}
	default:
		obj, err := encodeText(value)
		if err != nil {
			return &Error{Op: "set", Field: w.name, Err: err}
		}
		w.field["V"] = obj
	}
	return nil
}

// Refresh drops the cached appearance of text-like widgets; with
// NeedAppearances set the viewer renders the new value. Buttons keep their
// appearance states, selected through /AS.
func (w *pdfcpuWidget) Refresh() error {
	if w.doc.ctx == nil {
		return &Error{Op: "refresh", Field: w.name, Err: ErrClosed}
	}
	switch w.kind {
	case KindCheckbox, KindRadio:
		return nil
	default:
		delete(w.annot, "AP")
		return nil
	}
}

// onState returns the name of the widget's "on" appearance.
func (w *pdfcpuWidget) onState() (string, error) {
	ctx := w.doc.ctx
	apObj, found := w.annot.Find("AP")
	if !found {
		return "", errors.New("button has no appearance dictionary")
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return "", errors.New("button appearance dictionary is unreadable")
	}
	nObj, found := ap.Find("N")
	if !found {
		return "", errors.New("button has no normal appearance")
	}
	normal, err := ctx.DereferenceDict(nObj)
	if err != nil || normal == nil {
		return "", errors.New("button normal appearance is not a state dictionary")
	}

	states := make([]string, 0, len(normal))
	for k := range normal {
		if k != "Off" {
			states = append(states, k)
		}
	}
	if len(states) == 0 {
		return "", errors.New("button has no on state")
	}
	sort.Strings(states)
	return states[0], nil
}

func nameEntry(ctx *model.Context, d types.Dict, key string) string {
	obj, found := d.Find(key)
	if !found {
		return ""
	}
	n, err := ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return string(n)
}

func hasKey(d types.Dict, key string) bool {
	_, found := d.Find(key)
	return found
}
