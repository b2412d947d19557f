// parser.go — recursive-descent parser for CalcScript.
//
// Nodes & spans
// -------------
// The AST is a tree of S-expressions: []any whose first element is a string
// tag. This list is the reference for every consumer (the stepping machine
// and the debugger's checkpoint detector):
//
//	("program", stmt...)
//	("block",   stmt...)
//	("noop")                                // synthesized empty slot
//
// Literals & identifiers:
//
//	("id",   string)
//	("num",  float64)
//	("str",  string)                        // decoded literal
//	("bool", bool)
//	("null")
//
// Operators / expressions:
//
//	("unop",  op, rhs)                      // prefix "-" or "!"
//	("binop", op, lhs, rhs)                 // arithmetic, comparisons, "==", "!="
//	("logic", op, lhs, rhs)                 // "&&", "||" (short-circuit)
//	("assign", target, value)               // target is ("id"...), ("idx"...) or ("get"...)
//
// Property / call / index:
//
//	("call", callee, arg...)
//	("get",  obj, ("str", name))            // obj.name
//	("idx",  obj, indexExpr)                // obj[expr]
//
// Collections & functions:
//
//	("array", e...)
//	("map",   ("pair", ("str", k), v)...)   // object literal, insertion order kept
//	("funexpr", ("params", ("id", p)...), bodyBlock)
//	("fundecl", ("id", name), ("params", ...), bodyBlock)
//
// Statements:
//
//	("let", ("id", name), expr)
//	("exprstmt", expr)
//	("if", cond, thenBlock)                 // or ("if", cond, thenBlock, elseNode)
//	("while", cond, bodyBlock)
//	("for", init, cond, post, bodyBlock)    // absent clauses become ("noop")
//	("return")                              // or ("return", expr)
//	("break")
//	("continue")
//
// Span emission invariant
// -----------------------
// Every AST node is constructed through the mk/mkLeaf helpers, which append
// exactly one Span per node in strict post-order of the final tree (children
// first, left to right). Synthesized nodes (noop, absent clauses) pass tok=-1
// and receive a placeholder Span{} so post-order cardinality stays intact.
// ParseWithSpans binds the recorded spans to NodePaths via
// BuildSpanIndexPostOrder (spans.go).
package calcscript

import (
	"fmt"
)

// S is the S-expression node type: a tag string followed by children.
type S = []any

// L builds an S-expression from a tag and parts. It does not record a span;
// the parser's mk helpers do that.
func L(tag string, parts ...any) S { return append([]any{tag}, parts...) }

// Tag returns the node's tag string, or "" for malformed nodes.
func Tag(n S) string {
	if len(n) == 0 {
		return ""
	}
	t, _ := n[0].(string)
	return t
}

// ParseError reports a syntax failure at a 1-based source position.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parse parses a complete CalcScript source string and returns its AST.
func Parse(src string) (S, error) {
	ast, _, err := ParseWithSpans(src)
	return ast, err
}

// ParseWithSpans parses like Parse and also returns a SpanIndex binding every
// AST node to its byte range in src.
func ParseWithSpans(src string) (S, *SpanIndex, error) {
	toks, err := NewLexer(src).Scan()
	if err != nil {
		return nil, nil, err
	}
	p := &parser{toks: toks, src: src}
	ast, err := p.program()
	if err != nil {
		return nil, nil, err
	}
	return ast, BuildSpanIndexPostOrder(ast, p.post), nil
}

type parser struct {
	toks []Token
	src  string
	i    int
	post []Span // strictly post-order: one span per node, appended after children
}

// ───────────────────────── span emission ─────────────────────────

func (p *parser) appendSpanByTok(startTok, endTok int) {
	if startTok >= 0 && endTok >= startTok && endTok < len(p.toks) {
		p.post = append(p.post, Span{
			Start: p.toks[startTok].StartByte,
			End:   p.toks[endTok].EndByte,
		})
		return
	}
	p.post = append(p.post, Span{})
}

// mkLeaf builds a leaf node whose span is the single token tok. Pass tok=-1
// for synthesized leaves; they get a placeholder span.
func (p *parser) mkLeaf(tag string, tok int, parts ...any) S {
	n := L(tag, parts...)
	p.appendSpanByTok(tok, tok)
	return n
}

// mk builds a parent node after its children were constructed, covering the
// token range [startTok, endTok].
func (p *parser) mk(tag string, startTok, endTok int, parts ...any) S {
	n := L(tag, parts...)
	p.appendSpanByTok(startTok, endTok)
	return n
}

// ───────────────────────── token helpers ─────────────────────────

func (p *parser) atEnd() bool { return p.peek().Type == EOF }

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) check(tt TokenType) bool { return p.peek().Type == tt }

func (p *parser) match(tts ...TokenType) bool {
	for _, tt := range tts {
		if p.peek().Type == tt {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) need(tt TokenType, msg string) (Token, error) {
	if p.match(tt) {
		return p.prev(), nil
	}
	g := p.peek()
	return Token{}, &ParseError{Line: g.Line, Col: g.Col, Msg: msg}
}

// endStatement consumes a statement terminator. The semicolon may be omitted
// immediately before "}" or at end of input.
func (p *parser) endStatement() error {
	if p.match(SEMI) {
		return nil
	}
	if p.check(RCURLY) || p.atEnd() {
		return nil
	}
	g := p.peek()
	return &ParseError{Line: g.Line, Col: g.Col, Msg: "expected ';' after statement"}
}

// ───────────────────────── grammar ─────────────────────────

func (p *parser) program() (S, error) {
	startTok := p.i
	var stmts []any
	for !p.atEnd() {
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	return p.mk("program", startTok, maxTok(startTok, p.i-1), stmts...), nil
}

func maxTok(a, b int) int {
	if b < a {
		return a
	}
	return b
}

func (p *parser) statement() (S, error) {
	switch p.peek().Type {
	case LET:
		return p.letStatement()
	case FUNCTION:
		return p.funDeclaration()
	case IF:
		return p.ifStatement()
	case WHILE:
		return p.whileStatement()
	case FOR:
		return p.forStatement()
	case RETURN:
		return p.returnStatement()
	case BREAK:
		start := p.i
		p.i++
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		return p.mk("break", start, p.i-1), nil
	case CONTINUE:
		start := p.i
		p.i++
		if err := p.endStatement(); err != nil {
			return nil, err
		}
		return p.mk("continue", start, p.i-1), nil
	case LCURLY:
		return p.block()
	default:
		return p.exprStatement()
	}
}

func (p *parser) letStatement() (S, error) {
	start := p.i
	p.i++ // consume 'let'
	nameTok, err := p.need(ID, "expected variable name after 'let'")
	if err != nil {
		return nil, err
	}
	name := p.mkLeaf("id", p.i-1, nameTok.Literal.(string))
	if _, err := p.need(ASSIGN, "expected '=' in 'let' declaration"); err != nil {
		return nil, err
	}
	val, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return p.mk("let", start, p.i-1, name, val), nil
}

func (p *parser) funDeclaration() (S, error) {
	start := p.i
	p.i++ // consume 'function'
	nameTok, err := p.need(ID, "expected function name")
	if err != nil {
		return nil, err
	}
	name := p.mkLeaf("id", p.i-1, nameTok.Literal.(string))
	params, err := p.paramList()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return p.mk("fundecl", start, p.i-1, name, params, body), nil
}

func (p *parser) paramList() (S, error) {
	openTok := p.i
	if _, err := p.need(LPAREN, "expected '(' before parameter list"); err != nil {
		return nil, err
	}
	var params []any
	if !p.check(RPAREN) {
		for {
			tok, err := p.need(ID, "expected parameter name")
			if err != nil {
				return nil, err
			}
			params = append(params, p.mkLeaf("id", p.i-1, tok.Literal.(string)))
			if !p.match(COMMA) {
				break
			}
		}
	}
	if _, err := p.need(RPAREN, "expected ')' after parameter list"); err != nil {
		return nil, err
	}
	return p.mk("params", openTok, p.i-1, params...), nil
}

func (p *parser) ifStatement() (S, error) {
	start := p.i
	p.i++ // consume 'if'
	if _, err := p.need(LPAREN, "expected '(' after 'if'"); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RPAREN, "expected ')' after condition"); err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	if p.match(ELSE) {
		var alt S
		if p.check(IF) {
			alt, err = p.ifStatement()
		} else {
			alt, err = p.block()
		}
		if err != nil {
			return nil, err
		}
		return p.mk("if", start, p.i-1, cond, then, alt), nil
	}
	return p.mk("if", start, p.i-1, cond, then), nil
}

func (p *parser) whileStatement() (S, error) {
	start := p.i
	p.i++ // consume 'while'
	if _, err := p.need(LPAREN, "expected '(' after 'while'"); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.need(RPAREN, "expected ')' after condition"); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return p.mk("while", start, p.i-1, cond, body), nil
}

func (p *parser) forStatement() (S, error) {
	start := p.i
	p.i++ // consume 'for'
	if _, err := p.need(LPAREN, "expected '(' after 'for'"); err != nil {
		return nil, err
	}

	var init S
	var err error
	switch {
	case p.match(SEMI):
		init = p.mkLeaf("noop", -1)
	case p.check(LET):
		init, err = p.letStatement() // consumes its ';'
	default:
		var e S
		e, err = p.expression()
		if err == nil {
			init = p.mk("exprstmt", -1, -1, e)
			_, err = p.need(SEMI, "expected ';' after 'for' initializer")
		}
	}
	if err != nil {
		return nil, err
	}

	var cond S
	if p.match(SEMI) {
		cond = p.mkLeaf("noop", -1)
	} else {
		cond, err = p.expression()
		if err != nil {
			return nil, err
		}
		if _, err = p.need(SEMI, "expected ';' after 'for' condition"); err != nil {
			return nil, err
		}
	}

	var post S
	if p.check(RPAREN) {
		post = p.mkLeaf("noop", -1)
	} else {
		post, err = p.expression()
		if err != nil {
			return nil, err
		}
	}
	if _, err = p.need(RPAREN, "expected ')' after 'for' clauses"); err != nil {
		return nil, err
	}

	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return p.mk("for", start, p.i-1, init, cond, post, body), nil
}

func (p *parser) returnStatement() (S, error) {
	start := p.i
	p.i++ // consume 'return'
	if p.match(SEMI) {
		return p.mk("return", start, p.i-1), nil
	}
	if p.check(RCURLY) || p.atEnd() {
		return p.mk("return", start, p.i-1), nil
	}
	val, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return p.mk("return", start, p.i-1, val), nil
}

func (p *parser) block() (S, error) {
	openTok := p.i
	if _, err := p.need(LCURLY, "expected '{'"); err != nil {
		return nil, err
	}
	var stmts []any
	for !p.check(RCURLY) && !p.atEnd() {
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	if _, err := p.need(RCURLY, "expected '}' after block"); err != nil {
		return nil, err
	}
	return p.mk("block", openTok, p.i-1, stmts...), nil
}

func (p *parser) exprStatement() (S, error) {
	start := p.i
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return p.mk("exprstmt", start, p.i-1, e), nil
}

// ───────────────────────── expressions ─────────────────────────

func (p *parser) expression() (S, error) { return p.assignment() }

func (p *parser) assignment() (S, error) {
	start := p.i
	left, err := p.logicalOr()
	if err != nil {
		return nil, err
	}
	if !p.match(ASSIGN) {
		return left, nil
	}
	switch Tag(left) {
	case "id", "idx", "get":
	default:
		eq := p.prev()
		return nil, &ParseError{Line: eq.Line, Col: eq.Col, Msg: "invalid assignment target"}
	}
	value, err := p.assignment() // right-associative
	if err != nil {
		return nil, err
	}
	return p.mk("assign", start, p.i-1, left, value), nil
}

func (p *parser) logicalOr() (S, error) {
	start := p.i
	left, err := p.logicalAnd()
	if err != nil {
		return nil, err
	}
	for p.match(OROR) {
		right, err := p.logicalAnd()
		if err != nil {
			return nil, err
		}
		left = p.mk("logic", start, p.i-1, "||", left, right)
	}
	return left, nil
}

func (p *parser) logicalAnd() (S, error) {
	start := p.i
	left, err := p.equality()
	if err != nil {
		return nil, err
	}
	for p.match(ANDAND) {
		right, err := p.equality()
		if err != nil {
			return nil, err
		}
		left = p.mk("logic", start, p.i-1, "&&", left, right)
	}
	return left, nil
}

var binopLexeme = map[TokenType]string{
	EQ: "==", NEQ: "!=",
	LESS: "<", LESS_EQ: "<=", GREATER: ">", GREATER_EQ: ">=",
	PLUS: "+", MINUS: "-", MULT: "*", DIV: "/", MOD: "%",
}

func (p *parser) equality() (S, error)   { return p.binaryLevel(p.comparison, EQ, NEQ) }
func (p *parser) comparison() (S, error) { return p.binaryLevel(p.additive, LESS, LESS_EQ, GREATER, GREATER_EQ) }
func (p *parser) additive() (S, error)   { return p.binaryLevel(p.multiplicative, PLUS, MINUS) }
func (p *parser) multiplicative() (S, error) {
	return p.binaryLevel(p.unary, MULT, DIV, MOD)
}

func (p *parser) binaryLevel(next func() (S, error), ops ...TokenType) (S, error) {
	start := p.i
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.match(ops...) {
		op := binopLexeme[p.prev().Type]
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = p.mk("binop", start, p.i-1, op, left, right)
	}
	return left, nil
}

func (p *parser) unary() (S, error) {
	start := p.i
	if p.match(MINUS, BANG) {
		op := "-"
		if p.prev().Type == BANG {
			op = "!"
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return p.mk("unop", start, p.i-1, op, operand), nil
	}
	return p.postfix()
}

func (p *parser) postfix() (S, error) {
	start := p.i
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.match(LPAREN):
			var args []any
			if !p.check(RPAREN) {
				for {
					a, err := p.expression()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if !p.match(COMMA) {
						break
					}
				}
			}
			if _, err := p.need(RPAREN, "expected ')' after arguments"); err != nil {
				return nil, err
			}
			e = p.mk("call", start, p.i-1, append([]any{e}, args...)...)
		case p.match(LSQUARE):
			idx, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.need(RSQUARE, "expected ']' after index"); err != nil {
				return nil, err
			}
			e = p.mk("idx", start, p.i-1, e, idx)
		case p.match(DOT):
			nameTok, err := p.need(ID, "expected property name after '.'")
			if err != nil {
				return nil, err
			}
			key := p.mkLeaf("str", p.i-1, nameTok.Literal.(string))
			e = p.mk("get", start, p.i-1, e, key)
		default:
			return e, nil
		}
	}
}

func (p *parser) primary() (S, error) {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.i++
		return p.mkLeaf("num", p.i-1, tok.Literal.(float64)), nil
	case STRING:
		p.i++
		return p.mkLeaf("str", p.i-1, tok.Literal.(string)), nil
	case BOOLEAN:
		p.i++
		return p.mkLeaf("bool", p.i-1, tok.Literal.(bool)), nil
	case NULL:
		p.i++
		return p.mkLeaf("null", p.i-1), nil
	case ID:
		p.i++
		return p.mkLeaf("id", p.i-1, tok.Literal.(string)), nil
	case LPAREN:
		p.i++
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(RPAREN, "expected ')' after expression"); err != nil {
			return nil, err
		}
		return e, nil
	case LSQUARE:
		return p.arrayLiteral()
	case LCURLY:
		return p.objectLiteral()
	case FUNCTION:
		return p.funExpression()
	default:
		return nil, &ParseError{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf("unexpected token %q", tok.Lexeme)}
	}
}

func (p *parser) arrayLiteral() (S, error) {
	openTok := p.i
	p.i++ // consume '['
	var elems []any
	if !p.check(RSQUARE) {
		for {
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if !p.match(COMMA) {
				break
			}
		}
	}
	if _, err := p.need(RSQUARE, "expected ']' after array elements"); err != nil {
		return nil, err
	}
	return p.mk("array", openTok, p.i-1, elems...), nil
}

func (p *parser) objectLiteral() (S, error) {
	openTok := p.i
	p.i++ // consume '{'
	var pairs []any
	if !p.check(RCURLY) {
		for {
			pairStart := p.i
			var key S
			switch p.peek().Type {
			case ID:
				p.i++
				key = p.mkLeaf("str", p.i-1, p.prev().Literal.(string))
			case STRING:
				p.i++
				key = p.mkLeaf("str", p.i-1, p.prev().Literal.(string))
			default:
				g := p.peek()
				return nil, &ParseError{Line: g.Line, Col: g.Col, Msg: "expected object key"}
			}
			if _, err := p.need(COLON, "expected ':' after object key"); err != nil {
				return nil, err
			}
			val, err := p.expression()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, p.mk("pair", pairStart, p.i-1, key, val))
			if !p.match(COMMA) {
				break
			}
		}
	}
	if _, err := p.need(RCURLY, "expected '}' after object literal"); err != nil {
		return nil, err
	}
	return p.mk("map", openTok, p.i-1, pairs...), nil
}

func (p *parser) funExpression() (S, error) {
	start := p.i
	p.i++ // consume 'function'
	params, err := p.paramList()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return p.mk("funexpr", start, p.i-1, params, body), nil
}
