package naming

import (
	"fmt"
	"strings"
)

// Column names the deriver reads.
const (
	FieldBOLNum   = "BOLnum"
	FieldDesc     = "Desc_1"
	FieldFromName = "FromName"
	FieldSCAC     = "SCAC"
)

const (
	namePrefix    = "BOL"
	nameExt       = ".pdf"
	descMaxLen    = 8
	fromNameRunes = 2
)

// Fields is the read side of a row.
type Fields interface {
	Get(key string) string
}

// ExpectedColumns returns the columns a spreadsheet should carry for full names.
func ExpectedColumns() []string {
	return []string{FieldBOLNum, FieldDesc, FieldFromName, FieldSCAC}
}

// Policy controls how output names are made unique.
type Policy string

const (
	// PolicyDerived uses the derived name as-is; identical key fields collide.
	PolicyDerived Policy = "derived"
	// PolicyIndexed always appends the 1-based row number before the extension.
	PolicyIndexed Policy = "indexed"
)

// ParsePolicy validates a policy name. The empty string maps to PolicyDerived.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDerived:
		return PolicyDerived, nil
	case PolicyIndexed:
		return PolicyIndexed, nil
	default:
		return "", fmt.Errorf("unknown name policy %q (must be one of: derived, indexed)", s)
	}
}

// Name derives the output name for the row at index under the policy.
func (p Policy) Name(row Fields, index int) string {
	if p == PolicyIndexed {
		return DeriveIndexedName(row, index)
	}
	return DeriveName(row, index)
}

// DeriveName builds BOL_<bol>[_<desc8>][_<from2>][_<scac>].pdf for a row.
// Rows without a usable BOLnum fall back to ROW_<index+1, 3 digits>.
func DeriveName(row Fields, index int) string {
	return strings.Join(nameParts(row, index), "_") + nameExt
}

// DeriveIndexedName is DeriveName with the row number appended, so two rows can
// never produce the same name.
func DeriveIndexedName(row Fields, index int) string {
	parts := append(nameParts(row, index), rowNumber(index))
	return strings.Join(parts, "_") + nameExt
}

func nameParts(row Fields, index int) []string {
	bol := Sanitize(strings.TrimSpace(row.Get(FieldBOLNum)), 0)
	if bol == "" {
		bol = "ROW_" + rowNumber(index)
	}
	desc := Sanitize(strings.TrimSpace(row.Get(FieldDesc)), descMaxLen)
	from := FirstNAlnum(strings.TrimSpace(row.Get(FieldFromName)), fromNameRunes)
	scac := Sanitize(strings.TrimSpace(row.Get(FieldSCAC)), 0)

	parts := []string{namePrefix, bol}
	for _, p := range []string{desc, from, scac} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func rowNumber(index int) string {
	return fmt.Sprintf("%03d", index+1)
}
