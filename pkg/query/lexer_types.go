package query

// Token is one lexical token of a statement
type Token struct {
	Type   TokenType
	Value  string
	Pos    int
	Line   int
	Column int
}

// TokenType classifies a token
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Keywords
	TokenSelect
	TokenInsert
	TokenUpdate
	TokenDelete
	TokenCreate
	TokenDrop
	TokenAlter
	TokenShow
	TokenTable
	TokenTables
	TokenDatabase
	TokenDatabases
	TokenIndex
	TokenIndexes
	TokenFullText
	TokenColumn
	TokenAdd
	TokenInto
	TokenValues
	TokenFrom
	TokenWhere
	TokenSet
	TokenOrder
	TokenBy
	TokenAsc
	TokenDesc
	TokenLimit
	TokenOffset
	TokenGroup
	TokenJoin
	TokenOn
	TokenIn
	TokenAnd
	TokenOr
	TokenNot
	TokenLike
	TokenBetween
	TokenContains
	TokenRegex
	TokenFuzzy
	TokenBegin
	TokenCommit
	TokenRollback
	TokenTrue
	TokenFalse
	TokenNull

	// Identifiers and literals
	TokenIdentifier
	TokenString
	TokenNumber

	// Operators
	TokenEquals        // =
	TokenNotEquals     // != or <>
	TokenLessThan      // <
	TokenGreaterThan   // >
	TokenLessEquals    // <=
	TokenGreaterEquals // >=

	// Delimiters
	TokenLeftParen  // (
	TokenRightParen // )
	TokenComma      // ,
	TokenDot        // .
	TokenStar       // *
	TokenSemicolon  // ;
)

var keywords = map[string]TokenType{
	"SELECT":    TokenSelect,
	"INSERT":    TokenInsert,
	"UPDATE":    TokenUpdate,
	"DELETE":    TokenDelete,
	"CREATE":    TokenCreate,
	"DROP":      TokenDrop,
	"ALTER":     TokenAlter,
	"SHOW":      TokenShow,
	"TABLE":     TokenTable,
	"TABLES":    TokenTables,
	"DATABASE":  TokenDatabase,
	"DATABASES": TokenDatabases,
	"INDEX":     TokenIndex,
	"INDEXES":   TokenIndexes,
	"FULLTEXT":  TokenFullText,
	"COLUMN":    TokenColumn,
	"ADD":       TokenAdd,
	"INTO":      TokenInto,
	"VALUES":    TokenValues,
	"FROM":      TokenFrom,
	"WHERE":     TokenWhere,
	"SET":       TokenSet,
	"ORDER":     TokenOrder,
	"BY":        TokenBy,
	"ASC":       TokenAsc,
	"DESC":      TokenDesc,
	"LIMIT":     TokenLimit,
	"OFFSET":    TokenOffset,
	"GROUP":     TokenGroup,
	"JOIN":      TokenJoin,
	"ON":        TokenOn,
	"IN":        TokenIn,
	"AND":       TokenAnd,
	"OR":        TokenOr,
	"NOT":       TokenNot,
	"LIKE":      TokenLike,
	"BETWEEN":   TokenBetween,
	"CONTAINS":  TokenContains,
	"REGEX":     TokenRegex,
	"FUZZY":     TokenFuzzy,
	"BEGIN":     TokenBegin,
	"COMMIT":    TokenCommit,
	"ROLLBACK":  TokenRollback,
	"TRUE":      TokenTrue,
	"FALSE":     TokenFalse,
	"NULL":      TokenNull,
}
