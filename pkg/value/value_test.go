package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPathRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"simple", "a"},
		{"dotted", "a.b.c"},
		{"indexed", "a[0].b[12]"},
		{"quoted", `("my-key").b`},
		{"quoted indexed", `a.("x.y")[3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.in)
			if err != nil {
				t.Fatalf("ParsePath(%q) failed: %v", tt.in, err)
			}
			if got := p.String(); got != tt.in {
				t.Errorf("Expected %q, got %q", tt.in, got)
			}
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, in := range []string{"", "a..b", "a[-1]", "a[x]", "1abc", `("unterminated`, "a[2"} {
		if _, err := ParsePath(in); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}

func TestPath_Prepend(t *testing.T) {
	p := MustParsePath("timeout[1]")
	got := p.Prepend("params")
	if got.String() != "params.timeout[1]" {
		t.Errorf("Expected params.timeout[1], got %s", got.String())
	}
	if p.String() != "timeout[1]" {
		t.Errorf("Prepend modified the receiver: %s", p.String())
	}
}

func TestLiteralString(t *testing.T) {
	tests := []struct {
		lit  *Literal
		want string
	}{
		{String("a\"b"), `"a\"b"`},
		{Int(42), "42"},
		{Long(7), "7L"},
		{Double(2), "2.0"},
		{Double(0.5), "0.5"},
		{Bool(true), "true"},
		{Void(), ""},
	}

	for _, tt := range tests {
		if got := tt.lit.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

func TestEvaluate(t *testing.T) {
	expr := &Tree{
		Root: String("root"),
		Assignments: []Assignment{
			{Path: MustParsePath("host"), Value: String("localhost")},
			{Path: MustParsePath("port"), Value: Int(8080)},
			{Path: MustParsePath("tags[1]"), Value: String("b")},
			{Path: MustParsePath("tags[0]"), Value: String("a")},
			{Path: MustParsePath("tls.enabled"), Value: Bool(true)},
		},
	}

	got := Evaluate(expr).Data()
	want := map[string]any{
		RootKey: "root",
		"host":  "localhost",
		"port":  int64(8080),
		"tags":  []any{"a", "b"},
		"tls":   map[string]any{"enabled": true},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Evaluate mismatch (-want +got):\n%s", diff)
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := &Tree{
		Root:        Void(),
		Assignments: []Assignment{{Path: MustParsePath("a"), Value: Int(1)}},
	}
	c := Clone(orig).(*Tree)
	c.Assignments[0].Value.(*Literal).Int = 99
	c.Assignments[0].Path[0].Name = "z"

	if orig.Assignments[0].Value.(*Literal).Int != 1 {
		t.Error("Clone shares literal with original")
	}
	if orig.Assignments[0].Path[0].Name != "a" {
		t.Error("Clone shares path with original")
	}
}
