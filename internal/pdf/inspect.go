package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/mcp-bol-filler/internal/pdf/form"
)

const maxFieldDepth = 32

// TemplateInfo describes a template's pages, document info and form fields.
type TemplateInfo struct {
	Name     string      `json:"name"`
	Size     int64       `json:"size"`
	Pages    int         `json:"pages"`
	Title    string      `json:"title,omitempty"`
	Producer string      `json:"producer,omitempty"`
	Fields   []FieldInfo `json:"fields"`
}

// FieldInfo describes one terminal AcroForm field.
type FieldInfo struct {
	Name  string    `json:"name"`
	Type  form.Kind `json:"type"`
	Value string    `json:"value,omitempty"`
}

// HasField reports whether the template has a field with the given name.
func (i *TemplateInfo) HasField(name string) bool {
	for _, f := range i.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// MissingFields returns the names that no template field carries.
func (i *TemplateInfo) MissingFields(names []string) []string {
	var missing []string
	for _, n := range names {
		if !i.HasField(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Inspect parses the template read-only and lists its form fields.
func (t *Template) Inspect() (info *TemplateInfo, err error) {
	// ledongthuc/pdf panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("failed to inspect template %s: %v", t.Name, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(t.data), int64(len(t.data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open template %s: %w", t.Name, err)
	}

	info = &TemplateInfo{
		Name:   t.Name,
		Size:   t.Size(),
		Pages:  r.NumPage(),
		Fields: []FieldInfo{},
	}

	trailer := r.Trailer()
	if trailer.IsNull() {
		return info, nil
	}

	if docInfo := trailer.Key("Info"); !docInfo.IsNull() {
		info.Title = strings.TrimSpace(docInfo.Key("Title").Text())
		info.Producer = strings.TrimSpace(docInfo.Key("Producer").Text())
	}

	fields := trailer.Key("Root").Key("AcroForm").Key("Fields")
	if fields.Kind() != pdf.Array {
		return info, nil
	}

	for i := 0; i < fields.Len(); i++ {
		collectFields(fields.Index(i), "", inheritedAttrs{}, 0, &info.Fields)
	}

	return info, nil
}

type inheritedAttrs struct {
	ft    string
	flags int64
}

func collectFields(field pdf.Value, prefix string, attrs inheritedAttrs, depth int, out *[]FieldInfo) {
	if field.Kind() != pdf.Dict || depth > maxFieldDepth {
		return
	}

	name := prefix
	if t := field.Key("T"); !t.IsNull() {
		if prefix == "" {
			name = t.Text()
		} else {
			name = prefix + "." + t.Text()
		}
	}
	if ft := field.Key("FT"); ft.Kind() == pdf.Name {
		attrs.ft = ft.Name()
	}
	if ff := field.Key("Ff"); ff.Kind() == pdf.Integer {
		attrs.flags = ff.Int64()
	}

	// Kids that carry a /T are child fields; kids without one are widgets.
	kids := field.Key("Kids")
	hasChildFields := false
	if kids.Kind() == pdf.Array {
		for i := 0; i < kids.Len(); i++ {
			if kid := kids.Index(i); !kid.Key("T").IsNull() {
				hasChildFields = true
				collectFields(kid, name, attrs, depth+1, out)
			}
		}
	}
	if hasChildFields || name == "" {
		return
	}

	*out = append(*out, FieldInfo{
		Name:  name,
		Type:  kindOf(attrs),
		Value: valueText(field.Key("V")),
	})
}

func kindOf(attrs inheritedAttrs) form.Kind {
	switch attrs.ft {
	case "Tx":
		return form.KindText
	case "Ch":
		return form.KindChoice
	case "Sig":
		return form.KindSignature
	case "Btn":
		switch {
		case attrs.flags&(1<<16) != 0:
			return form.KindButton
		case attrs.flags&(1<<15) != 0:
			return form.KindRadio
		default:
			return form.KindCheckbox
		}
	default:
		return form.KindUnknown
	}
}

func valueText(v pdf.Value) string {
	switch v.Kind() {
	case pdf.Name:
		return v.Name()
	case pdf.String:
		return v.Text()
	default:
		return ""
	}
}
