// Package query implements the SQL-ish surface of the database: a
// lexer and recursive parser, a cost-based planner, a sequential plan
// executor with a per-query memory budget and disk spill, and a
// fingerprinted result cache.
package query

import (
	"fmt"
	"strings"
	"unicode"
)

// Lexer tokenizes one statement. Keywords are case-insensitive;
// quoted literals keep their exact text.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int
	tokens []Token
}

// NewLexer creates a lexer over the input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, column: 1}
}

// Tokenize converts the input into a token stream ending in EOF
func (l *Lexer) Tokenize() ([]Token, error) {
	for l.pos < len(l.input) {
		if unicode.IsSpace(rune(l.input[l.pos])) {
			l.skipWhitespace()
			continue
		}
		if l.peek() == '-' && l.peekAhead(1) == '-' {
			l.skipLineComment()
			continue
		}

		token, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		if token.Type != TokenEOF {
			l.tokens = append(l.tokens, token)
		}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos, Line: l.line, Column: l.column})
	return l.tokens, nil
}

func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos, Line: l.line, Column: l.column}, nil
	}

	ch := l.peek()

	switch ch {
	case '(':
		return l.makeToken(TokenLeftParen, string(l.advance())), nil
	case ')':
		return l.makeToken(TokenRightParen, string(l.advance())), nil
	case ',':
		return l.makeToken(TokenComma, string(l.advance())), nil
	case '.':
		return l.makeToken(TokenDot, string(l.advance())), nil
	case '*':
		return l.makeToken(TokenStar, string(l.advance())), nil
	case ';':
		return l.makeToken(TokenSemicolon, string(l.advance())), nil
	case '=':
		l.advance()
		return l.makeToken(TokenEquals, "="), nil
	case '!':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenNotEquals, "!="), nil
		}
		return Token{}, fmt.Errorf("unexpected character '!' at line %d column %d", l.line, l.column)
	case '<':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenLessEquals, "<="), nil
		}
		if l.peek() == '>' {
			l.advance()
			return l.makeToken(TokenNotEquals, "<>"), nil
		}
		return l.makeToken(TokenLessThan, "<"), nil
	case '>':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return l.makeToken(TokenGreaterEquals, ">="), nil
		}
		return l.makeToken(TokenGreaterThan, ">"), nil
	case '\'', '"':
		return l.readString(ch)
	}

	if unicode.IsDigit(rune(ch)) || (ch == '-' && unicode.IsDigit(rune(l.peekAhead(1)))) {
		return l.readNumber(), nil
	}
	if unicode.IsLetter(rune(ch)) || ch == '_' {
		return l.readWord(), nil
	}

	return Token{}, fmt.Errorf("unexpected character %q at line %d column %d", ch, l.line, l.column)
}

// readString consumes a quoted literal. A doubled quote escapes
// itself inside the literal.
func (l *Lexer) readString(quote byte) (Token, error) {
	start := l.pos
	l.advance()

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.advance()
		if ch == quote {
			if l.peek() == quote {
				sb.WriteByte(quote)
				l.advance()
				continue
			}
			return Token{Type: TokenString, Value: sb.String(), Pos: start, Line: l.line, Column: l.column}, nil
		}
		sb.WriteByte(ch)
	}
	return Token{}, fmt.Errorf("unterminated string starting at position %d", start)
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	for l.pos < len(l.input) && (unicode.IsDigit(rune(l.peek())) || l.peek() == '.') {
		l.advance()
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: start, Line: l.line, Column: l.column}
}

func (l *Lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) && (unicode.IsLetter(rune(l.peek())) || unicode.IsDigit(rune(l.peek())) || l.peek() == '_') {
		l.advance()
	}
	word := l.input[start:l.pos]
	if tt, ok := keywords[strings.ToUpper(word)]; ok {
		return Token{Type: tt, Value: strings.ToUpper(word), Pos: start, Line: l.line, Column: l.column}
	}
	return Token{Type: TokenIdentifier, Value: word, Pos: start, Line: l.line, Column: l.column}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekAhead(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) advance() byte {
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) makeToken(tt TokenType, value string) Token {
	return Token{Type: tt, Value: value, Pos: l.pos, Line: l.line, Column: l.column}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.advance()
	}
}

func (l *Lexer) skipLineComment() {
	for l.pos < len(l.input) && l.input[l.pos] != '\n' {
		l.advance()
	}
}
