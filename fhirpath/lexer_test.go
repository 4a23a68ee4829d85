package fhirpath

import "testing"

func lexAll(src string) []token {
	l := newLexer(src)
	var toks []token
	for {
		tok := l.next()
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks
		}
	}
}

func TestLexerBasicTokens(t *testing.T) {
	toks := lexAll("Patient.name.given[0] = 'Jim'")
	wantKinds := []tokenKind{
		tokIdentifier, tokDot, tokIdentifier, tokDot, tokIdentifier,
		tokLBracket, tokIntegerLiteral, tokRBracket, tokEq, tokStringLiteral, tokEOF,
	}
	if len(toks) != len(wantKinds) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(wantKinds), toks)
	}
	for i, want := range wantKinds {
		if toks[i].kind != want {
			t.Errorf("token %d: got kind %v, want %v (%q)", i, toks[i].kind, want, toks[i].text)
		}
	}
}

func TestLexerKeywordsVsIdentifiers(t *testing.T) {
	toks := lexAll("true and false or xor")
	want := []tokenKind{tokTrue, tokAnd, tokFalse, tokOr, tokXor, tokEOF}
	for i, k := range want {
		if toks[i].kind != k {
			t.Errorf("token %d: got %v, want %v", i, toks[i].kind, k)
		}
	}
}

func TestLexerDollarSigils(t *testing.T) {
	toks := lexAll("$this $index $total")
	for i := 0; i < 3; i++ {
		if toks[i].kind != tokDollarSigil {
			t.Errorf("token %d: got %v, want tokDollarSigil", i, toks[i].kind)
		}
	}
	if toks[0].text != "$this" || toks[1].text != "$index" || toks[2].text != "$total" {
		t.Errorf("unexpected dollar sigil text: %q %q %q", toks[0].text, toks[1].text, toks[2].text)
	}
}

func TestLexerExternalConstant(t *testing.T) {
	toks := lexAll("%ucum %'quoted name' %`ident`")
	for i, tok := range toks[:3] {
		if tok.kind != tokExternalConstant {
			t.Errorf("token %d: got %v, want tokExternalConstant (%q)", i, tok.kind, tok.text)
		}
	}
}

func TestLexerTemporalLiterals(t *testing.T) {
	cases := map[string]tokenKind{
		"@2020-01-01":          tokDateLiteral,
		"@2020-01-01T10:00:00Z": tokDateTimeLiteral,
		"@T10:00:00":           tokTimeLiteral,
	}
	for src, want := range cases {
		toks := lexAll(src)
		if toks[0].kind != want {
			t.Errorf("lexing %q: got %v, want %v", src, toks[0].kind, want)
		}
	}
}

func TestLexerNumberForms(t *testing.T) {
	cases := map[string]tokenKind{
		"42":    tokIntegerLiteral,
		"42L":   tokLongLiteral,
		"3.14":  tokDecimalLiteral,
		"0":     tokIntegerLiteral,
	}
	for src, want := range cases {
		toks := lexAll(src)
		if toks[0].kind != want {
			t.Errorf("lexing %q: got %v, want %v", src, toks[0].kind, want)
		}
	}
}

func TestLexerUnterminatedStringProducesError(t *testing.T) {
	l := newLexer("'unterminated")
	tok := l.next()
	if tok.kind != tokStringLiteral {
		t.Fatalf("got %v, want tokStringLiteral (lexer still returns a token)", tok.kind)
	}
	if len(l.errs) == 0 {
		t.Errorf("expected a lexer error to be recorded for unterminated string")
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	l := newLexer("#")
	tok := l.next()
	if tok.kind != tokError {
		t.Fatalf("got %v, want tokError", tok.kind)
	}
	if len(l.errs) != 1 {
		t.Errorf("got %d errors, want 1", len(l.errs))
	}
}

func TestLexerComments(t *testing.T) {
	toks := lexAll("1 // line comment\n+ 2 /* block */ * 3")
	wantKinds := []tokenKind{
		tokIntegerLiteral, tokPlus, tokIntegerLiteral, tokStar, tokIntegerLiteral, tokEOF,
	}
	if len(toks) != len(wantKinds) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(wantKinds), toks)
	}
	for i, want := range wantKinds {
		if toks[i].kind != want {
			t.Errorf("token %d: got %v, want %v", i, toks[i].kind, want)
		}
	}
}

func TestLexerDelimitedIdentifier(t *testing.T) {
	toks := lexAll("`class`.given")
	if toks[0].kind != tokDelimitedIdentifier {
		t.Errorf("got %v, want tokDelimitedIdentifier", toks[0].kind)
	}
	if toks[0].text != "`class`" {
		t.Errorf("got text %q", toks[0].text)
	}
}
