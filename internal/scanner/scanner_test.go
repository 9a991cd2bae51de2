package scanner_test

import (
	"fmt"
	"testing"

	"github.com/coral-lang/coral/internal/scanner"
	"github.com/coral-lang/coral/internal/token"
	"github.com/stretchr/testify/require"
)

func scanAll(src string) []token.Token {
	s := scanner.New([]byte(src))
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestScanPunctuationAndKeywords(t *testing.T) {
	cases := []struct {
		src  string
		want []token.Kind
	}{
		{"", []token.Kind{token.EOF}},
		{"( ) { } [ ] , . ; :", []token.Kind{
			token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
			token.LBRACK, token.RBRACK, token.COMMA, token.DOT, token.SEMI, token.COLON, token.EOF,
		}},
		{"! != = == < <= > >=", []token.Kind{
			token.BANG, token.BANG_EQ, token.EQ, token.EQ_EQ,
			token.LT, token.LT_EQ, token.GT, token.GT_EQ, token.EOF,
		}},
		{"var const fun class", []token.Kind{token.VAR, token.CONST, token.FUN, token.CLASS, token.EOF}},
		{"switch case default delete import", []token.Kind{
			token.SWITCH, token.CASE, token.DEFAULT, token.DELETE, token.IMPORT, token.EOF,
		}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%q", c.src), func(t *testing.T) {
			toks := scanAll(c.src)
			require.Len(t, toks, len(c.want))
			for i, tok := range toks {
				require.Equalf(t, c.want[i], tok.Kind, "token %d", i)
			}
		})
	}
}

func TestScanLiterals(t *testing.T) {
	toks := scanAll(`123 4.5 "hi there" identifier_1`)
	require.Len(t, toks, 5)
	require.Equal(t, token.NUMBER, toks[0].Kind)
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, token.NUMBER, toks[1].Kind)
	require.Equal(t, "4.5", toks[1].Lexeme)
	require.Equal(t, token.STRING, toks[2].Kind)
	require.Equal(t, `"hi there"`, toks[2].Lexeme)
	require.Equal(t, token.IDENT, toks[3].Kind)
	require.Equal(t, "identifier_1", toks[3].Lexeme)
}

func TestScanLineTracking(t *testing.T) {
	toks := scanAll("var a\n= 1;\n")
	require.Equal(t, 1, toks[0].Line) // var
	require.Equal(t, 1, toks[1].Line) // a
	require.Equal(t, 2, toks[2].Line) // =
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(`"no closing quote`)
	require.Equal(t, token.ILLEGAL, toks[0].Kind)
	require.NotEmpty(t, toks[0].Message)
}

func TestScanSkipsLineComments(t *testing.T) {
	toks := scanAll("1 // a comment\n2")
	require.Equal(t, []token.Kind{token.NUMBER, token.NUMBER, token.EOF},
		[]token.Kind{toks[0].Kind, toks[1].Kind, toks[2].Kind})
	require.Equal(t, "2", toks[1].Lexeme)
}
