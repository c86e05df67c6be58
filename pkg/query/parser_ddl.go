package query

import (
	"fmt"
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

// parseShow handles SHOW DATABASES | TABLES IN db | INDEXES (IN db | ON db.t)
func (p *Parser) parseShow() (Statement, error) {
	p.advance()

	switch p.peek().Type {
	case TokenDatabases:
		p.advance()
		return ShowDatabasesStmt{}, nil

	case TokenTables:
		p.advance()
		if _, err := p.expect(TokenIn); err != nil {
			return nil, fmt.Errorf("expected IN after SHOW TABLES")
		}
		db, err := p.expectIdentifier("database name")
		if err != nil {
			return nil, err
		}
		return ShowTablesStmt{DB: db}, nil

	case TokenIndexes:
		p.advance()
		switch p.peek().Type {
		case TokenIn:
			p.advance()
			db, err := p.expectIdentifier("database name")
			if err != nil {
				return nil, err
			}
			return ShowIndexesStmt{DB: db}, nil
		case TokenOn:
			p.advance()
			db, table, err := p.parseQualifiedName()
			if err != nil {
				return nil, err
			}
			return ShowIndexesStmt{DB: db, Table: table}, nil
		default:
			return nil, fmt.Errorf("expected IN or ON after SHOW INDEXES")
		}

	default:
		return nil, fmt.Errorf("expected DATABASES, TABLES, or INDEXES after SHOW")
	}
}

// parseCreate handles CREATE DATABASE | TABLE | [FULLTEXT] INDEX
func (p *Parser) parseCreate() (Statement, error) {
	p.advance()

	switch p.peek().Type {
	case TokenDatabase:
		p.advance()
		name, err := p.expectIdentifier("database name")
		if err != nil {
			return nil, err
		}
		return CreateDatabaseStmt{Name: name}, nil

	case TokenTable:
		p.advance()
		return p.parseCreateTable()

	case TokenFullText:
		p.advance()
		if _, err := p.expect(TokenIndex); err != nil {
			return nil, fmt.Errorf("expected INDEX after FULLTEXT")
		}
		return p.parseCreateIndex(true)

	case TokenIndex:
		p.advance()
		return p.parseCreateIndex(false)

	default:
		return nil, fmt.Errorf("expected DATABASE, TABLE, or INDEX after CREATE")
	}
}

func (p *Parser) parseCreateTable() (Statement, error) {
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}

	stmt := CreateTableStmt{DB: db, Table: table, Columns: map[string]string{}}
	if !p.match(TokenLeftParen) {
		return stmt, nil
	}
	for {
		name, err := p.expectIdentifier("column name")
		if err != nil {
			return nil, err
		}
		typeName, err := p.expectIdentifier("column type")
		if err != nil {
			return nil, err
		}
		stmt.Columns[name] = strings.ToUpper(typeName)
		if p.match(TokenComma) {
			continue
		}
		break
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return nil, fmt.Errorf("expected ) after column definitions")
	}
	return stmt, nil
}

func (p *Parser) parseCreateIndex(fullText bool) (Statement, error) {
	if _, err := p.expect(TokenOn); err != nil {
		return nil, fmt.Errorf("expected ON after CREATE INDEX")
	}
	db, table, cols, err := p.parseIndexTarget()
	if err != nil {
		return nil, err
	}
	return CreateIndexStmt{DB: db, Table: table, Columns: cols, FullText: fullText}, nil
}

// parseIndexTarget reads db.t(col[, col])
func (p *Parser) parseIndexTarget() (string, string, []string, error) {
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return "", "", nil, err
	}
	if _, err := p.expect(TokenLeftParen); err != nil {
		return "", "", nil, fmt.Errorf("expected ( after %s.%s", db, table)
	}
	var cols []string
	for {
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return "", "", nil, err
		}
		cols = append(cols, col)
		if p.match(TokenComma) {
			continue
		}
		break
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return "", "", nil, fmt.Errorf("expected ) after index columns")
	}
	return db, table, cols, nil
}

// parseDrop handles DROP DATABASE | TABLE | INDEX
func (p *Parser) parseDrop() (Statement, error) {
	p.advance()

	switch p.peek().Type {
	case TokenDatabase:
		p.advance()
		name, err := p.expectIdentifier("database name")
		if err != nil {
			return nil, err
		}
		return DropDatabaseStmt{Name: name}, nil

	case TokenTable:
		p.advance()
		db, table, err := p.parseQualifiedName()
		if err != nil {
			return nil, err
		}
		return DropTableStmt{DB: db, Table: table}, nil

	case TokenIndex:
		p.advance()
		if _, err := p.expect(TokenOn); err != nil {
			return nil, fmt.Errorf("expected ON after DROP INDEX")
		}
		db, table, cols, err := p.parseIndexTarget()
		if err != nil {
			return nil, err
		}
		return DropIndexStmt{DB: db, Table: table, Columns: cols}, nil

	default:
		return nil, fmt.Errorf("expected DATABASE, TABLE, or INDEX after DROP")
	}
}

// parseAlterTable handles ALTER TABLE db.t (ADD|DROP) COLUMN name [type]
func (p *Parser) parseAlterTable() (Statement, error) {
	p.advance()
	if _, err := p.expect(TokenTable); err != nil {
		return nil, fmt.Errorf("expected TABLE after ALTER")
	}
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}

	var drop bool
	switch p.peek().Type {
	case TokenAdd:
		p.advance()
	case TokenDrop:
		p.advance()
		drop = true
	default:
		return nil, fmt.Errorf("expected ADD or DROP in ALTER TABLE")
	}
	if _, err := p.expect(TokenColumn); err != nil {
		return nil, fmt.Errorf("expected COLUMN")
	}
	col, err := p.expectIdentifier("column name")
	if err != nil {
		return nil, err
	}

	stmt := AlterTableStmt{DB: db, Table: table, Column: col, Drop: drop}
	if !drop {
		typeName, err := p.expectIdentifier("column type")
		if err != nil {
			return nil, err
		}
		stmt.Type = strings.ToUpper(typeName)
	}
	return stmt, nil
}

// parseInsert handles INSERT INTO db.t (cols) VALUES (vals)[, (vals)]
func (p *Parser) parseInsert() (Statement, error) {
	p.advance()
	if _, err := p.expect(TokenInto); err != nil {
		return nil, fmt.Errorf("expected INTO after INSERT")
	}
	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, fmt.Errorf("expected column list after %s.%s", db, table)
	}
	var cols []string
	for {
		col, err := p.expectIdentifier("column name")
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.match(TokenComma) {
			continue
		}
		break
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return nil, fmt.Errorf("expected ) after column list")
	}

	if _, err := p.expect(TokenValues); err != nil {
		return nil, fmt.Errorf("expected VALUES")
	}

	var rows [][]storage.Value
	for {
		if _, err := p.expect(TokenLeftParen); err != nil {
			return nil, fmt.Errorf("expected ( before value list")
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
			return nil, fmt.Errorf("expected ) after value list")
		}
		if len(vals) != len(cols) {
			return nil, fmt.Errorf("value count %d does not match column count %d", len(vals), len(cols))
		}
		rows = append(rows, vals)
		if p.match(TokenComma) {
			continue
		}
		break
	}
	return InsertStmt{DB: db, Table: table, Columns: cols, Rows: rows}, nil
}

// parseDeleteOrControl distinguishes DELETE FROM from the
// delete-everything control statement.
func (p *Parser) parseDeleteOrControl() (Statement, error) {
	p.advance()

	if p.peek().Type == TokenIdentifier && strings.EqualFold(p.peek().Value, "everything") {
		p.advance()
		return ControlStmt{Target: "everything", Action: "delete"}, nil
	}

	// FROM is optional.
	p.match(TokenFrom)

	db, table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt := DeleteStmt{DB: db, Table: table}
	if p.match(TokenWhere) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// parseControl handles the optimization, cache, and statistics
// control statements.
func (p *Parser) parseControl() (Statement, error) {
	target := strings.ToLower(p.advance().Value)

	switch target {
	case "optimization":
		action := strings.ToLower(p.advance().Value)
		switch action {
		case "enable", "disable", "status":
			return ControlStmt{Target: "optimization", Action: action}, nil
		case "level":
			level := p.advance().Value
			if level == "" {
				return nil, fmt.Errorf("expected a level after 'optimization level'")
			}
			return ControlStmt{Target: "optimization", Action: "level", Level: level}, nil
		default:
			return nil, fmt.Errorf("unknown optimization action %q", action)
		}

	case "cache":
		action := strings.ToLower(p.advance().Value)
		switch action {
		case "enable", "disable", "clear", "stats":
			return ControlStmt{Target: "cache", Action: action}, nil
		default:
			return nil, fmt.Errorf("unknown cache action %q", action)
		}

	case "statistics":
		action := strings.ToLower(p.advance().Value)
		if action != "collect" {
			return nil, fmt.Errorf("unknown statistics action %q", action)
		}
		return ControlStmt{Target: "statistics", Action: "collect"}, nil

	default:
		return nil, fmt.Errorf("unknown statement %q", target)
	}
}
