package query

import "testing"

func tokenize(t *testing.T, input string) []Token {
	t.Helper()
	tokens, err := NewLexer(input).Tokenize()
	if err != nil {
		t.Fatalf("tokenize %q: %v", input, err)
	}
	return tokens
}

func TestLexerKeywordsAreCaseInsensitive(t *testing.T) {
	tokens := tokenize(t, "select * from db.users")
	want := []TokenType{TokenSelect, TokenStar, TokenFrom, TokenIdentifier, TokenDot, TokenIdentifier, TokenEOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tt := range want {
		if tokens[i].Type != tt {
			t.Errorf("token %d: got type %d value %q, want type %d", i, tokens[i].Type, tokens[i].Value, tt)
		}
	}
	if tokens[0].Value != "SELECT" {
		t.Errorf("keyword value not uppercased: %q", tokens[0].Value)
	}
	if tokens[3].Value != "db" {
		t.Errorf("identifier case not preserved: %q", tokens[3].Value)
	}
}

func TestLexerStrings(t *testing.T) {
	tokens := tokenize(t, `select * from d.t where name = 'O''Brien'`)
	var str *Token
	for i := range tokens {
		if tokens[i].Type == TokenString {
			str = &tokens[i]
		}
	}
	if str == nil {
		t.Fatal("no string token")
	}
	if str.Value != "O'Brien" {
		t.Errorf("doubled quote not unescaped: %q", str.Value)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	if _, err := NewLexer("select 'oops").Tokenize(); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestLexerNumbers(t *testing.T) {
	tokens := tokenize(t, "where age >= -3 and score = 1.5")
	var nums []string
	for _, tok := range tokens {
		if tok.Type == TokenNumber {
			nums = append(nums, tok.Value)
		}
	}
	if len(nums) != 2 || nums[0] != "-3" || nums[1] != "1.5" {
		t.Fatalf("numbers = %v", nums)
	}
}

func TestLexerOperators(t *testing.T) {
	cases := map[string]TokenType{
		"=":  TokenEquals,
		"!=": TokenNotEquals,
		"<>": TokenNotEquals,
		"<":  TokenLessThan,
		"<=": TokenLessEquals,
		">":  TokenGreaterThan,
		">=": TokenGreaterEquals,
	}
	for input, want := range cases {
		tokens := tokenize(t, "a "+input+" 1")
		if tokens[1].Type != want {
			t.Errorf("%q: got type %d, want %d", input, tokens[1].Type, want)
		}
	}
}

func TestLexerSkipsLineComments(t *testing.T) {
	tokens := tokenize(t, "select 1 -- trailing comment\nfrom d.t")
	for _, tok := range tokens {
		if tok.Type == TokenIdentifier && tok.Value == "comment" {
			t.Fatal("comment text leaked into tokens")
		}
	}
	if tokens[len(tokens)-1].Type != TokenEOF {
		t.Fatal("missing EOF token")
	}
}

func TestLexerTracksLineAndColumn(t *testing.T) {
	tokens := tokenize(t, "select\nname")
	if tokens[0].Line != 1 {
		t.Errorf("first token line = %d", tokens[0].Line)
	}
	if tokens[1].Line != 2 || tokens[1].Column != 1 {
		t.Errorf("second token at %d:%d, want 2:1", tokens[1].Line, tokens[1].Column)
	}
}
