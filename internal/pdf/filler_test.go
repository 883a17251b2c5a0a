package pdf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-bol-filler/internal/pdf/form"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
	"github.com/a3tai/mcp-bol-filler/internal/testutil"
)

func mustTemplate(t *testing.T, fields ...testutil.Field) *Template {
	t.Helper()
	tpl, err := LoadTemplate("bol.pdf", testutil.FormPDF(fields...), 0)
	require.NoError(t, err)
	return tpl
}

func filledValues(t *testing.T, data []byte) map[string]string {
	t.Helper()
	doc, err := form.NewPDFCPUOpener().Open(data)
	require.NoError(t, err)
	defer doc.Close()

	out := map[string]string{}
	for page := 1; page <= doc.PageCount(); page++ {
		widgets, err := doc.Widgets(page)
		require.NoError(t, err)
		for _, w := range widgets {
			out[w.Name()] = w.Value()
		}
	}
	return out
}

func TestWithOverrides(t *testing.T) {
	row := sheet.NewRow([]string{"BOLnum", "PrePaid", "3rdParty"}, []string{"1", "yes", ""})

	got := WithOverrides(row)

	assert.Equal(t, "X", got.Get("3rdParty"))
	assert.Equal(t, "", got.Get("PrePaid"))
	v, ok := got.Lookup("Collect")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	assert.Equal(t, "yes", row.Get("PrePaid"), "input row is not mutated")
	assert.Equal(t, 3, row.Len())
}

func TestFiller_Fill(t *testing.T) {
	tpl := mustTemplate(t,
		testutil.Field{Name: "BOLnum"},
		testutil.Field{Name: "SCAC"},
		testutil.Field{Name: "3rdParty"},
		testutil.Field{Name: "Untouched", Value: "original"},
	)
	before := append([]byte(nil), tpl.Bytes()...)
	row := sheet.NewRow([]string{"BOLnum", "SCAC"}, []string{"123", "XYZ"})

	result, err := NewFiller(form.NewPDFCPUOpener(), nil).Fill(tpl, row, 0)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(result.Data, []byte("%PDF")))
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.FieldErrors)

	values := filledValues(t, result.Data)
	assert.Equal(t, "123", values["BOLnum"])
	assert.Equal(t, "XYZ", values["SCAC"])
	assert.Equal(t, "X", values["3rdParty"])
	assert.Equal(t, "original", values["Untouched"])

	assert.Equal(t, before, tpl.Bytes(), "template bytes are never modified")
	_, ok := row.Lookup("3rdParty")
	assert.False(t, ok, "input row is not mutated")
}

func TestFiller_OverridesWinOverRow(t *testing.T) {
	tpl := mustTemplate(t,
		testutil.Field{Name: "3rdParty"},
		testutil.Field{Name: "PrePaid", Value: "was"},
		testutil.Field{Name: "Collect", Kind: testutil.KindCheckbox, Value: "Yes"},
	)
	row := sheet.NewRow([]string{"3rdParty", "PrePaid", "Collect"}, []string{"no", "X", "X"})

	result, err := NewFiller(form.NewPDFCPUOpener(), nil).Fill(tpl, row, 0)
	require.NoError(t, err)

	values := filledValues(t, result.Data)
	assert.Equal(t, "X", values["3rdParty"])
	assert.Equal(t, "", values["PrePaid"])
	assert.Equal(t, "Off", values["Collect"])
}

func TestFiller_FieldErrorsDoNotAbort(t *testing.T) {
	tpl := mustTemplate(t,
		testutil.Field{Name: "Print", Kind: testutil.KindPushButton},
		testutil.Field{Name: "BOLnum"},
	)
	row := sheet.NewRow([]string{"Print", "BOLnum"}, []string{"go", "B9"})

	result, err := NewFiller(form.NewPDFCPUOpener(), nil).Fill(tpl, row, 4)
	require.NoError(t, err)

	require.Len(t, result.FieldErrors, 1)
	fe := result.FieldErrors[0]
	assert.Equal(t, 1, fe.Page)
	assert.Equal(t, "Print", fe.Field)
	assert.ErrorIs(t, fe, form.ErrUnsupportedField)
	assert.Equal(t, 1, result.Applied)

	assert.Equal(t, "B9", filledValues(t, result.Data)["BOLnum"])
}

func TestFiller_OpenFailureIsFatal(t *testing.T) {
	tpl, err := LoadTemplate("broken.pdf", []byte("%PDF-1.7\nnot really"), 0)
	require.NoError(t, err)

	_, err = NewFiller(form.NewPDFCPUOpener(), nil).Fill(tpl, sheet.Row{}, 0)
	assert.Error(t, err)

	_, err = NewFiller(form.NewPDFCPUOpener(), nil).Fill(nil, sheet.Row{}, 0)
	assert.ErrorIs(t, err, ErrTemplateMissing)
}

type fakeWidget struct {
	name      string
	setErr    error
	panicMsg  string
	value     string
	refreshed int
}

func (w *fakeWidget) Name() string    { return w.name }
func (w *fakeWidget) Kind() form.Kind { return form.KindText }
func (w *fakeWidget) Value() string   { return w.value }
func (w *fakeWidget) Refresh() error {
	w.refreshed++
	return nil
}

func (w *fakeWidget) SetValue(v string) error {
	if w.panicMsg != "" {
		panic(w.panicMsg)
	}
	if w.setErr != nil {
		return w.setErr
	}
	w.value = v
	return nil
}

type fakeDocument struct {
	pages    [][]form.Widget
	pageErr  map[int]error
	needErr  error
	bytesErr error
	closed   int
}

func (d *fakeDocument) PageCount() int { return len(d.pages) }

func (d *fakeDocument) Widgets(page int) ([]form.Widget, error) {
	if err := d.pageErr[page]; err != nil {
		return nil, err
	}
	return d.pages[page-1], nil
}

func (d *fakeDocument) SetNeedAppearances(bool) error { return d.needErr }

func (d *fakeDocument) Bytes() ([]byte, error) {
	if d.bytesErr != nil {
		return nil, d.bytesErr
	}
	return []byte("%PDF-fake"), nil
}

func (d *fakeDocument) Close() error {
	d.closed++
	return nil
}

type fakeOpener struct {
	doc *fakeDocument
}

func (o fakeOpener) Open([]byte) (form.Document, error) { return o.doc, nil }

func TestFiller_RecoversAndClosesDocument(t *testing.T) {
	boom := errors.New("boom")
	good := &fakeWidget{name: "BOLnum"}
	doc := &fakeDocument{
		pages: [][]form.Widget{
			{
				&fakeWidget{name: ""},
				&fakeWidget{name: "Desc_1", panicMsg: "backend exploded"},
				&fakeWidget{name: "SCAC", setErr: boom},
				good,
			},
			nil,
		},
		pageErr: map[int]error{2: boom},
		needErr: form.ErrNoAcroForm,
	}
	tpl := mustTemplate(t)
	row := sheet.NewRow([]string{"BOLnum", "Desc_1", "SCAC"}, []string{"B1", "Coil", "ABCD"})

	result, err := NewFiller(fakeOpener{doc: doc}, nil).Fill(tpl, row, 0)
	require.NoError(t, err)

	assert.Equal(t, "B1", good.value)
	assert.Equal(t, 1, result.Applied)
	require.Len(t, result.FieldErrors, 3)
	assert.Equal(t, "Desc_1", result.FieldErrors[0].Field)
	assert.Contains(t, result.FieldErrors[0].Error(), "backend exploded")
	assert.ErrorIs(t, result.FieldErrors[1], boom)
	assert.Equal(t, 2, result.FieldErrors[2].Page)
	assert.Equal(t, 1, doc.closed)

	doc.bytesErr = boom
	doc.closed = 0
	_, err = NewFiller(fakeOpener{doc: doc}, nil).Fill(tpl, row, 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, doc.closed, "document is closed on error paths too")
}

func TestFiller_KeepsAppearancesWithoutNeedAppearances(t *testing.T) {
	tests := []struct {
		name          string
		needErr       error
		wantRefreshed int
	}{
		{name: "need appearances set", wantRefreshed: 1},
		{name: "need appearances failed", needErr: form.ErrNoAcroForm, wantRefreshed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWidget{name: "BOLnum"}
			doc := &fakeDocument{pages: [][]form.Widget{{w}}, needErr: tt.needErr}
			row := sheet.NewRow([]string{"BOLnum"}, []string{"B1"})

			result, err := NewFiller(fakeOpener{doc: doc}, nil).Fill(mustTemplate(t), row, 0)
			require.NoError(t, err)

			assert.Equal(t, 1, result.Applied)
			assert.Empty(t, result.FieldErrors)
			assert.Equal(t, "B1", w.value)
			assert.Equal(t, tt.wantRefreshed, w.refreshed)
		})
	}
}

func TestFieldError_MarshalJSON(t *testing.T) {
	data, err := FieldError{Page: 2, Field: "SCAC", Err: errors.New("bad")}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":2,"field":"SCAC","error":"bad"}`, string(data))
}
