package query

import (
	"fmt"
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

// parseSelect handles the full SELECT grammar
func (p *Parser) parseSelect() (Statement, error) {
	p.advance()
	stmt := SelectStmt{}

	if err := p.parseSelectList(&stmt); err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenFrom); err != nil {
		return nil, fmt.Errorf("expected FROM")
	}
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt.DB, stmt.Table = db, table

	if p.match(TokenJoin) {
		join, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		stmt.Join = join
	}

	if p.match(TokenWhere) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}

	if p.peek().Type == TokenGroup {
		p.advance()
		if _, err := p.expect(TokenBy); err != nil {
			return nil, fmt.Errorf("expected BY after GROUP")
		}
		for {
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, col)
			if p.match(TokenComma) {
				continue
			}
			break
		}
	}

	if p.peek().Type == TokenOrder {
		p.advance()
		if _, err := p.expect(TokenBy); err != nil {
			return nil, fmt.Errorf("expected BY after ORDER")
		}
		for {
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			key := OrderKey{Column: col}
			if p.match(TokenDesc) {
				key.Descending = true
			} else {
				p.match(TokenAsc)
			}
			stmt.OrderBy = append(stmt.OrderBy, key)
			if p.match(TokenComma) {
				continue
			}
			break
		}
	}

	if p.match(TokenLimit) {
		stmt.HasLimit = true
		stmt.Limit = p.advance().Value
		stmt.Offset = "0"
		if p.match(TokenOffset) {
			stmt.Offset = p.advance().Value
		}
	}

	if !p.atStatementEnd() {
		return nil, fmt.Errorf("unexpected token %q after SELECT", p.peek().Value)
	}
	return stmt, nil
}

// parseSelectList reads *, a column list, or aggregate calls
func (p *Parser) parseSelectList(stmt *SelectStmt) error {
	if p.match(TokenStar) {
		stmt.Star = true
		return nil
	}

	for {
		token := p.peek()
		if token.Type != TokenIdentifier {
			return fmt.Errorf("expected a column or aggregate, got %q", token.Value)
		}

		if aggregateFuncs[strings.ToUpper(token.Value)] && p.peekAhead(1).Type == TokenLeftParen {
			agg, err := p.parseAggregate()
			if err != nil {
				return err
			}
			stmt.Aggs = append(stmt.Aggs, agg)
		} else {
			col, err := p.parseColumnRef()
			if err != nil {
				return err
			}
			stmt.Columns = append(stmt.Columns, col)
		}

		if p.match(TokenComma) {
			continue
		}
		return nil
	}
}

func (p *Parser) parseAggregate() (Aggregate, error) {
	fn := strings.ToUpper(p.advance().Value)
	p.advance() // (

	var col string
	if p.match(TokenStar) {
		col = "*"
	} else {
		c, err := p.parseColumnRef()
		if err != nil {
			return Aggregate{}, err
		}
		col = c
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return Aggregate{}, fmt.Errorf("expected ) after %s", fn)
	}
	return Aggregate{Func: fn, Column: col}, nil
}

// parseColumnRef reads col or table.col
func (p *Parser) parseColumnRef() (string, error) {
	name, err := p.expectIdentifier("column name")
	if err != nil {
		return "", err
	}
	if p.peek().Type == TokenDot {
		p.advance()
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return "", err
		}
		return name + "." + col, nil
	}
	return name, nil
}

// parseJoin reads db.t ON left.col = right.col
func (p *Parser) parseJoin() (*JoinClause, error) {
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenOn); err != nil {
		return nil, fmt.Errorf("expected ON after JOIN %s.%s", db, table)
	}
	left, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEquals); err != nil {
		return nil, fmt.Errorf("join condition must be an equality")
	}
	right, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	return &JoinClause{DB: db, Table: table, LeftKey: left, RightKey: right}, nil
}

// parseUpdate handles UPDATE db.t SET c=v[, c=v] [WHERE cond]
func (p *Parser) parseUpdate() (Statement, error) {
	p.advance()
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSet); err != nil {
		return nil, fmt.Errorf("expected SET")
	}

	stmt := UpdateStmt{DB: db, Table: table, Set: map[string]storage.Value{}}
	for {
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenEquals); err != nil {
			return nil, fmt.Errorf("expected = after %q", col)
		}
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Set[col] = v
		if p.match(TokenComma) {
			continue
		}
		break
	}

	if p.match(TokenWhere) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// parseCondition parses the WHERE tree. OR binds loosest, then AND,
// then comparison leaves. Parentheses group.
func (p *Parser) parseCondition() (*Condition, error) {
	left, err := p.parseAndCondition()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != TokenOr {
		return left, nil
	}

	terms := []*Condition{left}
	for p.match(TokenOr) {
		right, err := p.parseAndCondition()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	return &Condition{Or: terms}, nil
}

func (p *Parser) parseAndCondition() (*Condition, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != TokenAnd {
		return left, nil
	}

	terms := []*Condition{left}
	for p.match(TokenAnd) {
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	return &Condition{And: terms}, nil
}

func (p *Parser) parseComparison() (*Condition, error) {
	if p.match(TokenLeftParen) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return nil, fmt.Errorf("expected ) in condition")
		}
		return cond, nil
	}

	col, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}

	token := p.advance()
	switch token.Type {
	case TokenEquals, TokenNotEquals, TokenLessThan, TokenLessEquals, TokenGreaterThan, TokenGreaterEquals:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Condition{Column: col, Op: token.Value, Value: v}, nil

	case TokenLike, TokenContains, TokenRegex, TokenFuzzy:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Condition{Column: col, Op: token.Value, Value: v}, nil

	case TokenIn:
		if _, err := p.expect(TokenLeftParen); err != nil {
			return nil, fmt.Errorf("expected ( after IN")
		}
		var vals []storage.Value
		for {
			v, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
			if p.match(TokenComma) {
				continue
			}
			break
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return nil, fmt.Errorf("expected ) after IN list")
		}
		return &Condition{Column: col, Op: "IN", Values: vals}, nil

	case TokenBetween:
		low, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenAnd); err != nil {
			return nil, fmt.Errorf("expected AND in BETWEEN")
		}
		high, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Condition{Column: col, Op: "BETWEEN", Low: low, High: high}, nil

	default:
		return nil, fmt.Errorf("expected a comparison operator, got %q", token.Value)
	}
}
