package ocr

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Replacement is one known misrecognition and its repair.
type Replacement struct {
	From string
	To   string
}

// DefaultReplacements are the Vietnamese repairs, applied in this order. Later entries see
// the output of earlier ones.
var DefaultReplacements = []Replacement{
	{"công dà", "công ty"},
	{"drà lệ", "điện lực"},
	{"ccai giả", "cầu giấy"},
	{"cai giay", "cầu giấy"},
	{"ccông", "công"},
	{"hoa don", "hóa đơn"},
	{"hoá đơn", "hóa đơn"},
	{"dia chi", "địa chỉ"},
	{"dien thoai", "điện thoại"},
	{"phose", "phone"},
	{"ma so thue", "mã số thuế"},
	{"khach hang", "khách hàng"},
	{"khách răng", "khách hàng"},
	{"tong cong", "tổng cộng"},
	{"thanh toan", "thanh toán"},
	{"qhanh hên", "thanh toán"},
	{"tieu thu", "tiêu thụ"},
	{"chi so", "chỉ số"},
	{"don gia", "đơn giá"},
	{"thanh tien", "thành tiền"},
	{"4", "số"},
	{"răng", "hàng"},
	{"6", "số"},
	{"s6", "số"},
	{"l", "i"},
	{"lI", "II"},
}

type correction struct {
	re *regexp.Regexp
	to string
}

// Corrector repairs known OCR errors with whole-word, case-insensitive replacements.
// It holds no mutable state and is safe for concurrent use.
type Corrector struct {
	rules []correction
}

func NewCorrector(reps []Replacement) *Corrector {
	c := &Corrector{rules: make([]correction, 0, len(reps))}
	for _, r := range reps {
		from := norm.NFC.String(r.From)
		c.rules = append(c.rules, correction{
			re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from)),
			to: norm.NFC.String(r.To),
		})
	}
	return c
}

// Correct applies every replacement then normalizes whitespace. Empty input is returned as is.
func (c *Corrector) Correct(text string) string {
	if text == "" {
		return text
	}
	text = norm.NFC.String(text)
	for _, r := range c.rules {
		text = replaceWords(text, r)
	}
	return normalizeOCRText(text)
}

// replaceWords substitutes matches of r that sit on word boundaries on both sides. A
// rejected match resumes the scan one rune after its start.
func replaceWords(s string, r correction) string {
	var b strings.Builder
	copied, pos := 0, 0
	for pos < len(s) {
		loc := r.re.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if start < end && atBoundary(s, start) && atBoundary(s, end) {
			b.WriteString(s[copied:start])
			b.WriteString(r.to)
			copied, pos = end, end
			continue
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		pos = start + max(size, 1)
	}
	if copied == 0 {
		return s
	}
	b.WriteString(s[copied:])
	return b.String()
}

// atBoundary reports whether byte offset i separates a word rune from a non-word rune.
func atBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r)
}
