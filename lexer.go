// lexer.go — tokenizer for CalcScript evaluation scripts.
package calcscript

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota
	ILLEGAL

	// Punctuation
	LPAREN  // "("
	RPAREN  // ")"
	LSQUARE // "["
	RSQUARE // "]"
	LCURLY  // "{"
	RCURLY  // "}"
	COMMA   // ","
	SEMI    // ";"
	COLON   // ":"
	DOT     // "."

	// Operators
	PLUS
	MINUS
	MULT
	DIV
	MOD
	ASSIGN // "="
	EQ     // "=="
	NEQ    // "!="
	LESS
	LESS_EQ
	GREATER
	GREATER_EQ
	BANG   // "!"
	ANDAND // "&&"
	OROR   // "||"

	// Literals & identifiers
	ID
	STRING
	NUMBER
	BOOLEAN
	NULL

	// Keywords
	LET
	FUNCTION
	RETURN
	IF
	ELSE
	WHILE
	FOR
	BREAK
	CONTINUE
)

// Token is a lexical token with optional literal value. StartByte/EndByte are
// byte offsets into the source; the parser turns them into node spans.
type Token struct {
	Type      TokenType
	Lexeme    string      // raw text slice
	Literal   interface{} // parsed value for literals
	Line      int         // 1-based
	Col       int         // 1-based
	StartByte int
	EndByte   int
}

var keywords = map[string]TokenType{
	"null":     NULL,
	"true":     BOOLEAN,
	"false":    BOOLEAN,
	"let":      LET,
	"function": FUNCTION,
	"return":   RETURN,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"break":    BREAK,
	"continue": CONTINUE,
}

// LexError reports a tokenization failure at a 1-based source position.
type LexError struct {
	Line int
	Col  int
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexical error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Lexer scans a CalcScript source string into tokens.
type Lexer struct {
	src    string
	start  int // start index of current token
	cur    int // current index
	line   int // 1-based
	col    int // 1-based column of cur
	tokens []Token

	// position of the current token's first byte
	tokStartLine int
	tokStartCol  int
}

// NewLexer creates a new lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// Scan tokenizes the whole source and returns the token list, terminated by a
// single EOF token. Line comments ("//...") and whitespace are skipped.
func (l *Lexer) Scan() ([]Token, error) {
	for {
		l.skipWhitespaceAndComments()
		l.start = l.cur
		l.tokStartLine = l.line
		l.tokStartCol = l.col
		if l.isAtEnd() {
			l.addToken(EOF, nil)
			return l.tokens, nil
		}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekNext() byte {
	if l.cur+1 >= len(l.src) {
		return 0
	}
	return l.src[l.cur+1]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.src[l.cur] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) addToken(tt TokenType, lit interface{}) {
	l.tokens = append(l.tokens, Token{
		Type:      tt,
		Lexeme:    l.src[l.start:l.cur],
		Literal:   lit,
		Line:      l.tokStartLine,
		Col:       l.tokStartCol,
		StartByte: l.start,
		EndByte:   l.cur,
	})
}

func (l *Lexer) errf(format string, args ...interface{}) error {
	return &LexError{Line: l.tokStartLine, Col: l.tokStartCol, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.isAtEnd() {
		switch l.peek() {
		case ' ', '\t', '\r', '\n':
			l.advance()
		case '/':
			if l.peekNext() == '/' {
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_' }
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isDigit(b)
}

func (l *Lexer) scanToken() error {
	ch := l.advance()
	switch ch {
	case '(':
		l.addToken(LPAREN, nil)
	case ')':
		l.addToken(RPAREN, nil)
	case '[':
		l.addToken(LSQUARE, nil)
	case ']':
		l.addToken(RSQUARE, nil)
	case '{':
		l.addToken(LCURLY, nil)
	case '}':
		l.addToken(RCURLY, nil)
	case ',':
		l.addToken(COMMA, nil)
	case ';':
		l.addToken(SEMI, nil)
	case ':':
		l.addToken(COLON, nil)
	case '.':
		l.addToken(DOT, nil)
	case '+':
		l.addToken(PLUS, nil)
	case '-':
		l.addToken(MINUS, nil)
	case '*':
		l.addToken(MULT, nil)
	case '/':
		l.addToken(DIV, nil)
	case '%':
		l.addToken(MOD, nil)
	case '=':
		if l.match('=') {
			l.addToken(EQ, nil)
		} else {
			l.addToken(ASSIGN, nil)
		}
	case '!':
		if l.match('=') {
			l.addToken(NEQ, nil)
		} else {
			l.addToken(BANG, nil)
		}
	case '<':
		if l.match('=') {
			l.addToken(LESS_EQ, nil)
		} else {
			l.addToken(LESS, nil)
		}
	case '>':
		if l.match('=') {
			l.addToken(GREATER_EQ, nil)
		} else {
			l.addToken(GREATER, nil)
		}
	case '&':
		if l.match('&') {
			l.addToken(ANDAND, nil)
		} else {
			return l.errf("unexpected character '&'")
		}
	case '|':
		if l.match('|') {
			l.addToken(OROR, nil)
		} else {
			return l.errf("unexpected character '|'")
		}
	case '"':
		return l.scanString()
	default:
		switch {
		case isDigit(ch):
			return l.scanNumber()
		case isAlpha(ch):
			l.scanIdentifier()
		default:
			return l.errf("unexpected character %q", string(ch))
		}
	}
	return nil
}

func (l *Lexer) scanString() error {
	var sb strings.Builder
	for {
		if l.isAtEnd() {
			return l.errf("unterminated string")
		}
		ch := l.advance()
		if ch == '"' {
			break
		}
		if ch == '\n' {
			return l.errf("unterminated string")
		}
		if ch == '\\' {
			if l.isAtEnd() {
				return l.errf("unterminated string")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				return l.errf("invalid escape sequence '\\%s'", string(esc))
			}
			continue
		}
		sb.WriteByte(ch)
	}
	l.addToken(STRING, sb.String())
	return nil
}

func (l *Lexer) scanNumber() error {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	// exponent form: 1e9, 2.5e-3
	if l.peek() == 'e' || l.peek() == 'E' {
		next := l.peekNext()
		if isDigit(next) || next == '+' || next == '-' {
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !isDigit(l.peek()) {
				return l.errf("malformed number literal")
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	f, err := strconv.ParseFloat(l.src[l.start:l.cur], 64)
	if err != nil {
		return l.errf("malformed number literal %q", l.src[l.start:l.cur])
	}
	l.addToken(NUMBER, f)
	return nil
}

func (l *Lexer) scanIdentifier() {
	for !l.isAtEnd() && isAlphaNum(l.peek()) {
		l.advance()
	}
	word := l.src[l.start:l.cur]
	if tt, ok := keywords[word]; ok {
		switch tt {
		case BOOLEAN:
			l.addToken(BOOLEAN, word == "true")
		case NULL:
			l.addToken(NULL, nil)
		default:
			l.addToken(tt, nil)
		}
		return
	}
	l.addToken(ID, word)
}
