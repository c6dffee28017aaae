package autoconf

import "fmt"

// TokenKind identifies the lexical class of a Token.
type TokenKind int

const (
	TokenEOF       TokenKind = iota // end of input; zero length
	TokenEOL                        // "\n" or "\r\n"
	TokenWord                       // identifier run
	TokenText                       // any other run of text
	TokenString                     // quoted text with one level of quotes removed
	TokenBackquote                  // `command`, quotes removed
	TokenComment                    // macro-mode comment, delimiters included
	TokenLParen                     // (
	TokenRParen                     // )
	TokenComma                      // ,
	TokenSemi                       // ;
	TokenCaseEnd                    // ;;
	TokenDollar                     // $ (shell mode only)
	TokenHere                       // <<
	TokenHereDash                   // <<-

	// Reserved words, recognized in shell mode only.
	TokenIf
	TokenThen
	TokenElif
	TokenElse
	TokenFi
	TokenFor
	TokenWhile
	TokenUntil
	TokenSelect
	TokenDo
	TokenDone
	TokenCase
	TokenEsac
	TokenIn
)

var tokenNames = [...]string{
	TokenEOF:       "EOF",
	TokenEOL:       "EOL",
	TokenWord:      "WORD",
	TokenText:      "TEXT",
	TokenString:    "STRING",
	TokenBackquote: "BACKQUOTE",
	TokenComment:   "COMMENT",
	TokenLParen:    "LPAREN",
	TokenRParen:    "RPAREN",
	TokenComma:     "COMMA",
	TokenSemi:      "SEMI",
	TokenCaseEnd:   "CASE_END",
	TokenDollar:    "DOLLAR",
	TokenHere:      "HERE",
	TokenHereDash:  "HERE_DASH",
	TokenIf:        "if",
	TokenThen:      "then",
	TokenElif:      "elif",
	TokenElse:      "else",
	TokenFi:        "fi",
	TokenFor:       "for",
	TokenWhile:     "while",
	TokenUntil:     "until",
	TokenSelect:    "select",
	TokenDo:        "do",
	TokenDone:      "done",
	TokenCase:      "case",
	TokenEsac:      "esac",
	TokenIn:        "in",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// IsKeyword reports whether k is a reserved word.
func (k TokenKind) IsKeyword() bool {
	return k >= TokenIf && k <= TokenIn
}

var keywords = map[string]TokenKind{
	"if":     TokenIf,
	"then":   TokenThen,
	"elif":   TokenElif,
	"else":   TokenElse,
	"fi":     TokenFi,
	"for":    TokenFor,
	"while":  TokenWhile,
	"until":  TokenUntil,
	"select": TokenSelect,
	"do":     TokenDo,
	"done":   TokenDone,
	"case":   TokenCase,
	"esac":   TokenEsac,
	"in":     TokenIn,
}

// Token is a lexeme read from a Document.
type Token struct {
	Kind   TokenKind
	Offset int    // offset of the first byte, including any quotes
	Len    int    // length in the source, including any quotes
	Text   string // token text; quotes removed for strings

	doc *Document
}

// End returns the offset just past the token.
func (t Token) End() int { return t.Offset + t.Len }

// Document returns the document the token was read from.
func (t Token) Document() *Document { return t.doc }

// Source returns the token's source text, including any quotes.
func (t Token) Source() string {
	if t.doc == nil {
		return t.Text
	}
	return t.doc.Slice(t.Offset, t.End())
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}
