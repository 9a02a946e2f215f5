package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the lexical category of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal
	TokenError // lexer failure, Literal holds the message

	// Operators
	TokenDot
	TokenAdd
	TokenSub
	TokenMult
	TokenDiv
	TokenMod
	TokenSmaller
	TokenGreater
	TokenSmallerOrEqual
	TokenGreaterOrEqual
	TokenEqual
	TokenNotEqual
	TokenNegative
	TokenAssign // := or = outside an expression
	TokenLambda // =>
	TokenComma

	// Delimiters
	TokenBracketOpen  // (
	TokenBracketClose // )
	TokenSquareOpen   // [
	TokenSquareClose  // ]
	TokenBegin        // {
	TokenEnd          // }

	// Literals
	TokenNumber
	TokenString

	// Keywords
	TokenWhen
	TokenThen
	TokenElse
	TokenWhile
	TokenDo
	TokenFor
	TokenTo
	TokenDownTo
	TokenReturn
	TokenBreak
	TokenContinue
	TokenFunctionDecl

	// Classified identifiers
	TokenFunction // native or code block
	TokenConstant
	TokenVariable
	TokenUnknown
)

var tokenNames = map[TokenType]string{
	TokenEOF:            "end of input",
	TokenIllegal:        "illegal character",
	TokenError:          "error",
	TokenDot:            ".",
	TokenAdd:            "+",
	TokenSub:            "-",
	TokenMult:           "*",
	TokenDiv:            "/",
	TokenMod:            "%",
	TokenSmaller:        "<",
	TokenGreater:        ">",
	TokenSmallerOrEqual: "<=",
	TokenGreaterOrEqual: ">=",
	TokenEqual:          "=",
	TokenNotEqual:       "<>",
	TokenNegative:       "negative",
	TokenAssign:         "assign",
	TokenLambda:         "=>",
	TokenComma:          ",",
	TokenBracketOpen:    "(",
	TokenBracketClose:   ")",
	TokenSquareOpen:     "[",
	TokenSquareClose:    "]",
	TokenBegin:          "{",
	TokenEnd:            "}",
	TokenNumber:         "number",
	TokenString:         "string",
	TokenWhen:           "when",
	TokenThen:           "then",
	TokenElse:           "else",
	TokenWhile:          "while",
	TokenDo:             "do",
	TokenFor:            "for",
	TokenTo:             "to",
	TokenDownTo:         "downto",
	TokenReturn:         "return",
	TokenBreak:          "break",
	TokenContinue:       "continue",
	TokenFunctionDecl:   "function",
	TokenFunction:       "function call",
	TokenConstant:       "constant",
	TokenVariable:       "variable",
	TokenUnknown:        "unknown identifier",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token is a lexical token. Identifiers carry their lower-cased name in
// Literal. Line and Col locate the first character.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Col     int
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"when":     TokenWhen,
	"then":     TokenThen,
	"else":     TokenElse,
	"while":    TokenWhile,
	"do":       TokenDo,
	"for":      TokenFor,
	"to":       TokenTo,
	"downto":   TokenDownTo,
	"return":   TokenReturn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"function": TokenFunctionDecl,
}

// Keywords returns the reserved words, sorted.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
