package expr

import (
	"fmt"
	"strconv"
)

// SyntaxError reports an expression that could not be parsed.
type SyntaxError struct {
	Expr    string
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d in %q: %s", e.Pos, e.Expr, e.Message)
}

type Parser struct {
	src    string
	lexer  *Lexer
	cur    Token
	peek   Token
	errors []*SyntaxError
}

// Parse builds the expression tree for src.
func Parse(src string) (Node, error) {
	p := &Parser{src: src, lexer: NewLexer(src)}
	p.next()
	p.next()

	if p.cur.Type == TokenEOF {
		return nil, &SyntaxError{Expr: src, Pos: 0, Message: "empty expression"}
	}

	node := p.parseOr()
	if len(p.errors) == 0 && p.cur.Type != TokenEOF {
		p.errorf("unexpected %s %q", p.cur.Type, p.cur.Value)
	}
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return node, nil
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, &SyntaxError{
		Expr:    p.src,
		Pos:     p.cur.Pos,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *Parser) expect(t TokenType) bool {
	if p.cur.Type != t {
		p.errorf("expected %s, got %s", t, p.cur.Type)
		return false
	}
	p.next()
	return true
}

func (p *Parser) parseOr() Node {
	left := p.parseAnd()
	for p.cur.Type == TokenOr && len(p.errors) == 0 {
		p.next()
		right := p.parseAnd()
		left = &Logical{Op: TokenOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Node {
	left := p.parseNot()
	for p.cur.Type == TokenAnd && len(p.errors) == 0 {
		p.next()
		right := p.parseNot()
		left = &Logical{Op: TokenAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNot() Node {
	if p.cur.Type == TokenNot {
		p.next()
		return &Unary{Op: TokenNot, Operand: p.parseNot()}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() Node {
	left := p.parsePostfix()
	if len(p.errors) > 0 {
		return left
	}

	switch p.cur.Type {
	case TokenEq, TokenNotEq, TokenGt, TokenGte, TokenLt, TokenLte, TokenIn:
		op := p.cur.Type
		p.next()
		return &Binary{Op: op, Left: left, Right: p.parsePostfix()}
	case TokenNot:
		if p.peek.Type == TokenIn {
			p.next()
			p.next()
			return &Binary{Op: TokenIn, Left: left, Right: p.parsePostfix(), Negated: true}
		}
	}
	return left
}

func (p *Parser) parsePostfix() Node {
	node := p.parsePrimary()
	for len(p.errors) == 0 {
		switch p.cur.Type {
		case TokenDot:
			p.next()
			switch p.cur.Type {
			case TokenIdentifier, TokenNumber, TokenIn, TokenTrue, TokenFalse, TokenNull, TokenAnd, TokenOr, TokenNot:
				node = &Member{Object: node, Field: p.cur.Value}
				p.next()
			default:
				p.errorf("expected field name after '.', got %s", p.cur.Type)
				return node
			}
		case TokenLeftBracket:
			p.next()
			idx := p.parseOr()
			if !p.expect(TokenRightBracket) {
				return node
			}
			node = &Index{Object: node, Index: idx}
		default:
			return node
		}
	}
	return node
}

func (p *Parser) parsePrimary() Node {
	tok := p.cur
	switch tok.Type {
	case TokenNumber:
		p.next()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.errors = append(p.errors, &SyntaxError{Expr: p.src, Pos: tok.Pos, Message: "invalid number " + tok.Value})
			return nil
		}
		return &Literal{Value: f}
	case TokenString:
		p.next()
		return &Literal{Value: tok.Value}
	case TokenTrue:
		p.next()
		return &Literal{Value: true}
	case TokenFalse:
		p.next()
		return &Literal{Value: false}
	case TokenNull:
		p.next()
		return &Literal{Value: nil}
	case TokenPlaceholder:
		p.next()
		return &Placeholder{Raw: tok.Value}
	case TokenIdentifier:
		p.next()
		if p.cur.Type == TokenLeftParen {
			return p.parseCall(tok.Value)
		}
		return &Identifier{Name: tok.Value}
	case TokenLeftParen:
		p.next()
		node := p.parseOr()
		p.expect(TokenRightParen)
		return node
	case TokenLeftBracket:
		return p.parseList()
	case TokenIllegal:
		p.errorf("illegal token %q", tok.Value)
		return nil
	default:
		p.errorf("unexpected %s", tok.Type)
		return nil
	}
}

func (p *Parser) parseCall(name string) Node {
	p.next() // (
	call := &Call{Name: name}
	if p.cur.Type == TokenRightParen {
		p.next()
		return call
	}
	for len(p.errors) == 0 {
		call.Args = append(call.Args, p.parseOr())
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		p.expect(TokenRightParen)
		break
	}
	return call
}

func (p *Parser) parseList() Node {
	p.next() // [
	list := &ListLiteral{}
	if p.cur.Type == TokenRightBracket {
		p.next()
		return list
	}
	for len(p.errors) == 0 {
		list.Items = append(list.Items, p.parseOr())
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		p.expect(TokenRightBracket)
		break
	}
	return list
}
