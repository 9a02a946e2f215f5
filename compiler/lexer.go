package compiler

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Classifier maps a lower-cased identifier that is not a reserved word to
// TokenFunction, TokenConstant, TokenVariable or TokenUnknown.
type Classifier func(word string) TokenType

// LexerState is a saved lexer position.
type LexerState struct {
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at end of input
	prev    rune // character before ch, 0 at start of input
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
}

// Lexer produces tokens on demand. Identifiers are classified through the
// Classifier, so the same word can lex differently as declarations are
// compiled.
type Lexer struct {
	input string
	LexerState

	classify Classifier

	// ExprDepth is positive while an expression is being compiled; '='
	// then lexes as comparison instead of assignment.
	ExprDepth int
}

// NewLexer creates a lexer over input. A nil classifier makes every
// non-reserved identifier TokenUnknown.
func NewLexer(input string, classify Classifier) *Lexer {
	l := &Lexer{input: input, classify: classify}
	l.line, l.col = 1, 1
	l.readChar()
	return l
}

// SetClassifier replaces the identifier classifier.
func (l *Lexer) SetClassifier(c Classifier) {
	l.classify = c
}

// Save returns the current position.
func (l *Lexer) Save() LexerState {
	return l.LexerState
}

// Restore rewinds to a position returned by Save.
func (l *Lexer) Restore(s LexerState) {
	l.LexerState = s
}

// Peek lexes the next token without consuming it.
func (l *Lexer) Peek() Token {
	s := l.Save()
	t := l.NextToken()
	l.Restore(s)
	return t
}

func (l *Lexer) readChar() {
	if l.readPos > 0 {
		if l.ch == 0 && l.pos >= len(l.input) {
			return
		}
		if l.ch == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
	l.prev = l.ch
	l.pos = l.readPos
	if l.pos >= len(l.input) {
		l.ch = 0
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.ch = r
	l.readPos = l.pos + size
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) || l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSeparators()

	tok := Token{Line: l.line, Col: l.col}
	single := func(t TokenType) Token {
		tok.Type = t
		tok.Literal = string(l.ch)
		l.readChar()
		return tok
	}
	double := func(t TokenType) Token {
		tok.Type = t
		tok.Literal = string(l.ch) + string(l.peekChar())
		l.readChar()
		l.readChar()
		return tok
	}

	switch {
	case l.ch == 0:
		tok.Type = TokenEOF
		return tok
	case l.ch == '.':
		return single(TokenDot)
	case l.ch == '(':
		return single(TokenBracketOpen)
	case l.ch == ')':
		return single(TokenBracketClose)
	case l.ch == '[':
		return single(TokenSquareOpen)
	case l.ch == ']':
		return single(TokenSquareClose)
	case l.ch == '{':
		return single(TokenBegin)
	case l.ch == '}':
		return single(TokenEnd)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '+':
		return single(TokenAdd)
	case l.ch == '*':
		return single(TokenMult)
	case l.ch == '/':
		return single(TokenDiv)
	case l.ch == '%':
		return single(TokenMod)
	case l.ch == '-':
		if l.isNegation() {
			return single(TokenNegative)
		}
		return single(TokenSub)
	case l.ch == '<':
		switch l.peekChar() {
		case '=':
			return double(TokenSmallerOrEqual)
		case '>':
			return double(TokenNotEqual)
		}
		return single(TokenSmaller)
	case l.ch == '>':
		if l.peekChar() == '=' {
			return double(TokenGreaterOrEqual)
		}
		return single(TokenGreater)
	case l.ch == ':':
		if l.peekChar() == '=' {
			return double(TokenAssign)
		}
		return single(TokenIllegal)
	case l.ch == '=':
		if l.ExprDepth > 0 {
			return single(TokenEqual)
		}
		if l.peekChar() == '>' {
			return double(TokenLambda)
		}
		return single(TokenAssign)
	case l.ch == '\'':
		return l.readString(tok)
	case isDigit(l.ch):
		return l.readNumber(tok)
	case isLetter(l.ch):
		return l.readIdentifier(tok)
	}
	return single(TokenIllegal)
}

// skipSeparators skips whitespace, ';', line comments and any '.' that is
// not a key accessor.
func (l *Lexer) skipSeparators() {
	for {
		switch {
		case l.ch != 0 && l.ch <= ' ', l.ch == ';':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '.' && !isLetter(l.peekChar()):
			l.readChar()
		default:
			return
		}
	}
}

// isNegation reports whether the '-' at the current position is a unary
// minus: preceded by whitespace, '(', '[', '=', ',' or the start of input,
// and not followed by whitespace.
func (l *Lexer) isNegation() bool {
	next := l.peekChar()
	if next <= ' ' {
		return false
	}
	if l.pos == 0 {
		return true
	}
	switch l.prev {
	case ' ', '\t', '\n', '\r', '(', '[', '=', ',':
		return true
	}
	return false
}

func (l *Lexer) readString(tok Token) Token {
	var sb strings.Builder
	l.readChar() // opening quote
	for {
		switch l.ch {
		case 0:
			tok.Type = TokenError
			tok.Literal = "unterminated string literal"
			return tok
		case '\'':
			if l.peekChar() == '\'' {
				sb.WriteRune('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			tok.Type = TokenString
			tok.Literal = sb.String()
			return tok
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
}

// readNumber reads a digit run with at most one decimal point. The point
// joins the number only when a digit follows it.
func (l *Lexer) readNumber(tok Token) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	tok.Type = TokenNumber
	tok.Literal = l.input[start:l.pos]
	return tok
}

func (l *Lexer) readIdentifier(tok Token) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	word := strings.ToLower(l.input[start:l.pos])
	tok.Literal = word
	if t, ok := reservedWords[word]; ok {
		tok.Type = t
		return tok
	}
	tok.Type = TokenUnknown
	if l.classify != nil {
		tok.Type = l.classify(word)
	}
	return tok
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}
