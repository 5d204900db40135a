package predicate

import (
	"errors"
	"testing"
	"time"
)

type attrs map[string]Value

func (a attrs) Attribute(name string) (Value, bool) {
	v, ok := a[name]
	return v, ok
}

func (a attrs) Texts() []string {
	var out []string
	for _, v := range a {
		if v.Kind == KindText {
			out = append(out, v.Text)
		}
	}
	return out
}

var now = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func item() attrs {
	return attrs{
		"kMDItemDisplayName":             Text("Quarterly Report.pdf"),
		"kMDItemContentType":             Text("com.adobe.pdf"),
		"kMDItemFSSize":                  Number(4096),
		"kMDItemContentModificationDate": TimeValue(now.Add(-2 * time.Hour)),
		"kMDItemAuthor":                  Text("Zoë Müller"),
		"kMDItemVersion":                 Text("12"),
	}
}

func TestMatch(t *testing.T) {
	tests := map[string]struct {
		expr string
		want bool
	}{
		"ExactString":          {`kMDItemContentType == "com.adobe.pdf"`, true},
		"SingleEquals":         {`kMDItemContentType = "com.adobe.pdf"`, true},
		"CaseSensitiveMiss":    {`kMDItemDisplayName == "quarterly report.pdf"`, false},
		"CaseInsensitive":      {`kMDItemDisplayName == "quarterly report.pdf"c`, true},
		"Wildcard":             {`kMDItemDisplayName == "*Report*"`, true},
		"SingleRuneWildcard":   {`kMDItemDisplayName == "Quarterly Report.pd?"`, true},
		"WildcardMiss":         {`kMDItemDisplayName == "*Invoice*"`, false},
		"DiacriticInsensitive": {`kMDItemAuthor == "zoe muller"cd`, true},
		"DiacriticSensitive":   {`kMDItemAuthor == "zoe muller"c`, false},
		"WordPrefix":           {`kMDItemDisplayName == "rep"cw`, true},
		"WordMiss":             {`kMDItemDisplayName == "port"cw`, false},
		"NotEqual":             {`kMDItemContentType != "public.folder"`, true},
		"NumberGreater":        {`kMDItemFSSize > 1024`, true},
		"NumberLessEqual":      {`kMDItemFSSize <= 4096`, true},
		"NumberLess":           {`kMDItemFSSize < 4096`, false},
		"TextAsNumber":         {`kMDItemVersion >= 10`, true},
		"TimeNow":              {`kMDItemContentModificationDate < $time.now`, true},
		"TimeNowOffset":        {`kMDItemContentModificationDate > $time.now(-3600)`, false},
		"TimeToday":            {`kMDItemContentModificationDate >= $time.today`, true},
		"TimeISO":              {`kMDItemContentModificationDate > $time.iso(2026-01-01T00:00:00Z)`, true},
		"InRange":              {`InRange(kMDItemFSSize, 1000, 5000)`, true},
		"InRangeMiss":          {`InRange(kMDItemFSSize, 5000, 9000)`, false},
		"InRangeTime":          {`InRange(kMDItemContentModificationDate, $time.today(-1), $time.now)`, true},
		"And":                  {`kMDItemFSSize > 1 && kMDItemContentType == "com.adobe.pdf"`, true},
		"Or":                   {`kMDItemFSSize > 99999 || kMDItemContentType == "*pdf"`, true},
		"Not":                  {`!(kMDItemFSSize > 99999)`, true},
		"Precedence":           {`kMDItemFSSize > 99999 && kMDItemFSSize > 1 || kMDItemFSSize == 4096`, true},
		"AnyAttribute":         {`* == "*müller*"c`, true},
		"AnyAttributeMiss":     {`* == "*nobody*"c`, false},
		"MissingAttribute":     {`kMDItemTitle == "*"`, false},
		"Escaped":              {`kMDItemDisplayName == "Quarterly\ Report.pdf"`, true},
		"True":                 {`true`, true},
	}

	for name, test := range tests {
		t.Run(name, func(tst *testing.T) {
			p, err := ParseAt(test.expr, now)
			if err != nil {
				tst.Fatalf("ParseAt failed: %v", err)
			}

			if got := p.Match(item()); got != test.want {
				tst.Errorf("Match(%s) = %v, want %v", test.expr, got, test.want)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := map[string]string{
		"Empty":            "",
		"Whitespace":       "   ",
		"MissingValue":     `kMDItemFSSize >`,
		"MissingOperator":  `kMDItemFSSize 12`,
		"Unterminated":     `kMDItemDisplayName == "abc`,
		"UnknownModifier":  `kMDItemDisplayName == "abc"x`,
		"UnbalancedParen":  `(kMDItemFSSize > 1`,
		"TrailingToken":    `kMDItemFSSize > 1 )`,
		"UnknownFunction":  `kMDItemContentModificationDate > $time.tomorrow`,
		"InRangeArguments": `InRange(kMDItemFSSize, 1)`,
		"DanglingAnd":      `kMDItemFSSize > 1 &&`,
	}

	for name, expr := range tests {
		t.Run(name, func(tst *testing.T) {
			if _, err := Parse(expr); !errors.Is(err, ErrMalformed) {
				tst.Fatalf("Parse(%q) error = %v, want ErrMalformed", expr, err)
			}
		})
	}
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern, text string
		want          bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"a*c", "abbbc", true},
		{"a*c", "abbb", false},
		{"*.go", "main.go", true},
		{"?", "ü", true},
		{`\*`, "*", true},
		{`\*`, "x", false},
		{"a**b", "ab", true},
	}

	for _, test := range tests {
		if got := glob(test.pattern, test.text); got != test.want {
			t.Errorf("glob(%q, %q) = %v, want %v", test.pattern, test.text, got, test.want)
		}
	}
}

func TestString(t *testing.T) {
	expr := `kMDItemFSSize > 1`
	if got := MustParse(expr).String(); got != expr {
		t.Fatalf("String() = %q, want %q", got, expr)
	}
}
