package expr

import (
	"strings"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenNumber
	TokenString
	TokenIdentifier
	TokenPlaceholder
	TokenTrue
	TokenFalse
	TokenNull
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenEq
	TokenNotEq
	TokenGt
	TokenGte
	TokenLt
	TokenLte
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenComma
	TokenDot
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of expression"
	case TokenIllegal:
		return "illegal"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenIdentifier:
		return "identifier"
	case TokenPlaceholder:
		return "placeholder"
	case TokenTrue, TokenFalse:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenNot:
		return "not"
	case TokenIn:
		return "in"
	case TokenEq:
		return "=="
	case TokenNotEq:
		return "!="
	case TokenGt:
		return ">"
	case TokenGte:
		return ">="
	case TokenLt:
		return "<"
	case TokenLte:
		return "<="
	case TokenLeftParen:
		return "("
	case TokenRightParen:
		return ")"
	case TokenLeftBracket:
		return "["
	case TokenRightBracket:
		return "]"
	case TokenComma:
		return ","
	case TokenDot:
		return "."
	default:
		return "unknown"
	}
}

type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"in":    TokenIn,
	"true":  TokenTrue,
	"True":  TokenTrue,
	"false": TokenFalse,
	"False": TokenFalse,
	"null":  TokenNull,
	"nil":   TokenNull,
	"None":  TokenNull,
}

type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
	prev    TokenType
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken returns the next token. A digit run that directly follows a
// dot is a field index, so "items.0.1" lexes as two member accesses.
func (l *Lexer) NextToken() Token {
	tok := l.nextToken()
	l.prev = tok.Type
	return tok
}

func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos}

	switch l.ch {
	case 0:
		tok.Type = TokenEOF
		return tok
	case '(':
		tok.Type, tok.Value = TokenLeftParen, "("
	case ')':
		tok.Type, tok.Value = TokenRightParen, ")"
	case '[':
		tok.Type, tok.Value = TokenLeftBracket, "["
	case ']':
		tok.Type, tok.Value = TokenRightBracket, "]"
	case ',':
		tok.Type, tok.Value = TokenComma, ","
	case '.':
		tok.Type, tok.Value = TokenDot, "."
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Value = TokenEq, "=="
		} else {
			tok.Type, tok.Value = TokenIllegal, "="
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Value = TokenNotEq, "!="
		} else {
			tok.Type, tok.Value = TokenNot, "!"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Value = TokenGte, ">="
		} else {
			tok.Type, tok.Value = TokenGt, ">"
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Value = TokenLte, "<="
		} else {
			tok.Type, tok.Value = TokenLt, "<"
		}
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			tok.Type, tok.Value = TokenAnd, "&&"
		} else {
			tok.Type, tok.Value = TokenIllegal, "&"
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok.Type, tok.Value = TokenOr, "||"
		} else {
			tok.Type, tok.Value = TokenIllegal, "|"
		}
	case '"', '\'':
		return l.readString(l.ch)
	case '$':
		if l.peekChar() == '{' {
			return l.readPlaceholder()
		}
		tok.Type, tok.Value = TokenIllegal, "$"
	case '-':
		if isDigit(l.peekChar()) {
			return l.readNumber()
		}
		tok.Type, tok.Value = TokenIllegal, "-"
	default:
		if isDigit(l.ch) && l.prev == TokenDot {
			return l.readIndex()
		}
		if isDigit(l.ch) {
			return l.readNumber()
		}
		if isIdentStart(l.ch) {
			return l.readIdentifier()
		}
		tok.Type, tok.Value = TokenIllegal, string(l.ch)
	}

	l.readChar()
	return tok
}

func (l *Lexer) readIndex() Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) || l.peekChar() == '+' || l.peekChar() == '-') {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) readString(quote byte) Token {
	start := l.pos
	l.readChar()
	var b strings.Builder
	for l.ch != quote {
		if l.ch == 0 {
			return Token{Type: TokenIllegal, Value: "unterminated string", Pos: start}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 0:
				return Token{Type: TokenIllegal, Value: "unterminated string", Pos: start}
			default:
				b.WriteByte(l.ch)
			}
			l.readChar()
			continue
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	l.readChar()
	return Token{Type: TokenString, Value: b.String(), Pos: start}
}

func (l *Lexer) readPlaceholder() Token {
	start := l.pos
	depth := 0
	for {
		switch l.ch {
		case 0:
			return Token{Type: TokenIllegal, Value: "unterminated placeholder", Pos: start}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				l.readChar()
				return Token{Type: TokenPlaceholder, Value: l.input[start:l.pos], Pos: start}
			}
		}
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	word := l.input[start:l.pos]
	if kw, ok := keywords[word]; ok {
		return Token{Type: kw, Value: word, Pos: start}
	}
	return Token{Type: TokenIdentifier, Value: word, Pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
