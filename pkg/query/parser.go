package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

// Parser builds statements from a token stream
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser over the tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// ParseScript tokenizes the input and parses every ;-separated
// statement. A parse error aborts at the failing statement; the
// error carries the statement's position in the script.
func ParseScript(input string) ([]Statement, error) {
	lexer := NewLexer(input)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, err
	}

	var stmts []Statement
	p := NewParser(tokens)
	for !p.isAtEnd() {
		if p.peek().Type == TokenSemicolon {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", len(stmts)+1, err)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// parseStatement dispatches on the leading keyword
func (p *Parser) parseStatement() (Statement, error) {
	token := p.peek()

	switch token.Type {
	case TokenShow:
		return p.parseShow()
	case TokenCreate:
		return p.parseCreate()
	case TokenDrop:
		return p.parseDrop()
	case TokenAlter:
		return p.parseAlterTable()
	case TokenInsert:
		return p.parseInsert()
	case TokenSelect:
		return p.parseSelect()
	case TokenUpdate:
		return p.parseUpdate()
	case TokenDelete:
		return p.parseDeleteOrControl()
	case TokenBegin:
		p.advance()
		return BeginStmt{}, nil
	case TokenCommit:
		p.advance()
		return CommitStmt{}, nil
	case TokenRollback:
		p.advance()
		return RollbackStmt{}, nil
	case TokenIdentifier:
		return p.parseControl()
	default:
		return nil, fmt.Errorf("unexpected token %q", token.Value)
	}
}

// parseQualifiedName reads db.table
func (p *Parser) parseQualifiedName() (string, string, error) {
	db, err := p.expectIdentifier("database name")
	if err != nil {
		return "", "", err
	}
	if _, err := p.expect(TokenDot); err != nil {
		return "", "", fmt.Errorf("expected db.table, got bare %q", db)
	}
	table, err := p.expectIdentifier("table name")
	if err != nil {
		return "", "", err
	}
	return db, table, nil
}

// parseLiteral reads one literal value
func (p *Parser) parseLiteral() (storage.Value, error) {
	token := p.advance()
	switch token.Type {
	case TokenString:
		return storage.StringValue(token.Value), nil
	case TokenNumber:
		if strings.Contains(token.Value, ".") {
			f, err := strconv.ParseFloat(token.Value, 64)
			if err != nil {
				return storage.Value{}, fmt.Errorf("bad number %q", token.Value)
			}
			return storage.FloatValue(f), nil
		}
		i, err := strconv.ParseInt(token.Value, 10, 64)
		if err != nil {
			return storage.Value{}, fmt.Errorf("bad number %q", token.Value)
		}
		return storage.IntValue(i), nil
	case TokenTrue:
		return storage.BoolValue(true), nil
	case TokenFalse:
		return storage.BoolValue(false), nil
	case TokenNull:
		return storage.NullValue(), nil
	default:
		return storage.Value{}, fmt.Errorf("expected a literal, got %q", token.Value)
	}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAhead(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() Token {
	token := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return token
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == TokenEOF
}

func (p *Parser) match(tt TokenType) bool {
	if p.peek().Type == tt {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	token := p.peek()
	if token.Type != tt {
		return Token{}, fmt.Errorf("unexpected token %q", token.Value)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdentifier(what string) (string, error) {
	token := p.peek()
	if token.Type != TokenIdentifier {
		return "", fmt.Errorf("expected %s, got %q", what, token.Value)
	}
	p.advance()
	return token.Value, nil
}

// atStatementEnd reports whether the current statement has no more
// clauses.
func (p *Parser) atStatementEnd() bool {
	t := p.peek().Type
	return t == TokenEOF || t == TokenSemicolon
}
