// Package testutil builds in-memory fixtures (fillable PDFs, workbooks) for tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// Field kinds understood by FormPDF.
const (
	KindText       = "text"
	KindCheckbox   = "checkbox"
	KindPushButton = "pushbutton"
	KindSignature  = "signature"
	KindChoice     = "choice"
	KindRadio      = "radio"
)

// Field describes one fillable field of a generated form.
//
// A KindRadio field is one button of a radio group: Parent names the group,
// Name is the button's on-state and a non-empty Value selects it.
type Field struct {
	Name   string
	Kind   string // defaults to KindText
	Value  string
	Parent string // when set, the widget is a kid of a parent field with this name
	Page   int    // zero-based page index
	// NoAppearance omits the /AP dictionary of text widgets.
	NoAppearance bool
}

// Form describes a generated fillable PDF.
type Form struct {
	Pages      int // at least 1
	Fields     []Field
	NoAcroForm bool
}

// FormPDF builds a single-page fillable PDF with the given fields.
func FormPDF(fields ...Field) []byte {
	return BuildForm(Form{Pages: 1, Fields: fields})
}

// BuildForm assembles a classic (xref table) PDF with an AcroForm whose
// widgets live in the page /Annots arrays. Each page also carries a link
// annotation that is not a widget.
func BuildForm(layout Form) []byte {
	if layout.Pages < 1 {
		layout.Pages = 1
	}

	b := &pdfBuilder{}
	catalog := b.reserve()
	pages := b.reserve()
	acroForm := 0
	if !layout.NoAcroForm {
		acroForm = b.reserve()
	}

	pageObjs := make([]int, layout.Pages)
	for i := range pageObjs {
		pageObjs[i] = b.reserve()
	}
	annots := make([][]int, layout.Pages)

	var fieldRefs []int
	parents := map[string]int{}
	parentKids := map[string][]int{}
	parentDefs := map[string]string{}
	var parentOrder []string

	for _, f := range layout.Fields {
		page := f.Page
		if page < 0 || page >= layout.Pages {
			page = 0
		}
		widget := b.reserve()
		annots[page] = append(annots[page], widget)

		var d strings.Builder
		fmt.Fprintf(&d, "<</Type/Annot/Subtype/Widget/Rect[50 %d 250 %d]/P %d 0 R/F 4",
			700-20*len(annots[page]), 716-20*len(annots[page]), pageObjs[page])

		if f.Parent != "" {
			p, ok := parents[f.Parent]
			if !ok {
				p = b.reserve()
				parents[f.Parent] = p
				parentOrder = append(parentOrder, f.Parent)
				fieldRefs = append(fieldRefs, p)
			}
			parentKids[f.Parent] = append(parentKids[f.Parent], widget)
			fmt.Fprintf(&d, "/Parent %d 0 R", p)
		} else {
			fieldRefs = append(fieldRefs, widget)
		}
		if f.Kind != KindRadio {
			d.WriteString("/T" + literal(f.Name))
		}

		switch f.Kind {
		case KindRadio:
			on := b.reserve()
			off := b.reserve()
			b.set(on, appearanceStream("0 g BT /ZaDb 12 Tf 2 4 Td (l) Tj ET"))
			b.set(off, appearanceStream(""))
			state := "Off"
			if f.Value != "" {
				state = f.Name
				parentDefs[f.Parent] = "/V/" + f.Name
			}
			fmt.Fprintf(&d, "/AS/%s/AP<</N<</%s %d 0 R/Off %d 0 R>>>>", state, f.Name, on, off)
			if _, ok := parentDefs[f.Parent]; !ok {
				parentDefs[f.Parent] = ""
			}
		case KindCheckbox:
			on := b.reserve()
			off := b.reserve()
			b.set(on, appearanceStream("0 g BT /ZaDb 12 Tf 2 4 Td (4) Tj ET"))
			b.set(off, appearanceStream(""))
			state := "Off"
			if f.Value != "" {
				state = f.Value
			}
			fmt.Fprintf(&d, "/FT/Btn/V/%s/AS/%s/AP<</N<</Yes %d 0 R/Off %d 0 R>>>>", state, state, on, off)
		case KindPushButton:
			d.WriteString("/FT/Btn/Ff 65536")
		case KindSignature:
			d.WriteString("/FT/Sig")
		case KindChoice:
			d.WriteString("/FT/Ch/Opt[(A)(B)]/DA(/Helv 10 Tf 0 g)")
			if f.Value != "" {
				d.WriteString("/V" + literal(f.Value))
			}
		default:
			d.WriteString("/FT/Tx/DA(/Helv 10 Tf 0 g)")
			if f.Value != "" {
				d.WriteString("/V" + literal(f.Value))
			}
			if !f.NoAppearance {
				ap := b.reserve()
				b.set(ap, appearanceStream("/Tx BMC EMC"))
				fmt.Fprintf(&d, "/AP<</N %d 0 R>>", ap)
			}
		}
		d.WriteString(">>")
		b.set(widget, d.String())
	}

	for _, name := range parentOrder {
		kids := refs(parentKids[name])
		def, radio := parentDefs[name]
		if radio {
			b.set(parents[name], fmt.Sprintf("<</T%s/FT/Btn/Ff 49152%s/Kids[%s]>>", literal(name), def, kids))
			continue
		}
		b.set(parents[name], fmt.Sprintf("<</T%s/FT/Tx/Kids[%s]>>", literal(name), kids))
	}

	for i, obj := range pageObjs {
		link := b.reserve()
		b.set(link, fmt.Sprintf("<</Type/Annot/Subtype/Link/Rect[0 0 10 10]/P %d 0 R/Border[0 0 0]>>", obj))
		all := append([]int{link}, annots[i]...)
		b.set(obj, fmt.Sprintf("<</Type/Page/Parent %d 0 R/MediaBox[0 0 612 792]/Resources<<>>/Annots[%s]>>",
			pages, refs(all)))
	}

	b.set(pages, fmt.Sprintf("<</Type/Pages/Kids[%s]/Count %d>>", refs(pageObjs), len(pageObjs)))

	if acroForm != 0 {
		b.set(acroForm, fmt.Sprintf("<</Fields[%s]/DA(/Helv 0 Tf 0 g)>>", refs(fieldRefs)))
		b.set(catalog, fmt.Sprintf("<</Type/Catalog/Pages %d 0 R/AcroForm %d 0 R>>", pages, acroForm))
	} else {
		b.set(catalog, fmt.Sprintf("<</Type/Catalog/Pages %d 0 R>>", pages))
	}

	return b.bytes(catalog)
}

type pdfBuilder struct {
	objs []string
}

func (b *pdfBuilder) reserve() int {
	b.objs = append(b.objs, "")
	return len(b.objs)
}

func (b *pdfBuilder) set(n int, body string) {
	b.objs[n-1] = body
}

func (b *pdfBuilder) bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")

	offsets := make([]int, len(b.objs))
	for i, body := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objs)+1)
	fmt.Fprintf(&buf, "%010d %05d f \r\n", 0, 65535)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d %05d n \r\n", off, 0)
	}
	fmt.Fprintf(&buf, "trailer\n<</Size %d/Root %d 0 R>>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, root, xref)
	return buf.Bytes()
}

func appearanceStream(content string) string {
	return fmt.Sprintf("<</Type/XObject/Subtype/Form/BBox[0 0 200 16]/Resources<<>>/Length %d>>\nstream\n%s\nendstream",
		len(content), content)
}

func refs(objs []int) string {
	parts := make([]string, len(objs))
	for i, o := range objs {
		parts[i] = fmt.Sprintf("%d 0 R", o)
	}
	return strings.Join(parts, " ")
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return "(" + r.Replace(s) + ")"
}
