package cypher

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType classifies a lexer token.
type TokenType int

const (
	TokMatch TokenType = iota
	TokWhere
	TokReturn
	TokOrder
	TokBy
	TokLimit
	TokAnd
	TokOr
	TokAs
	TokDistinct
	TokCount
	TokContains
	TokStarts
	TokEnds
	TokWith
	TokNot
	TokAsc
	TokDesc

	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokDash
	TokGT
	TokLT
	TokColon
	TokDot
	TokLBrace
	TokRBrace
	TokStar
	TokComma
	TokEQ
	TokNEQ
	TokRegex
	TokGTE
	TokLTE
	TokPipe
	TokDotDot

	TokIdent
	TokString
	TokNumber
	TokParam // $name

	TokEOF
)

var tokenNames = map[TokenType]string{
	TokLParen: "'('", TokRParen: "')'", TokLBracket: "'['", TokRBracket: "']'",
	TokDash: "'-'", TokGT: "'>'", TokLT: "'<'", TokColon: "':'", TokDot: "'.'",
	TokLBrace: "'{'", TokRBrace: "'}'", TokComma: "','", TokEQ: "'='",
	TokIdent: "identifier", TokString: "string", TokNumber: "number",
	TokParam: "parameter", TokEOF: "end of query",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	for kw, typ := range keywords {
		if typ == t {
			return kw
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a single lexer token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int // byte offset in the input
}

var keywords = map[string]TokenType{
	"MATCH":    TokMatch,
	"WHERE":    TokWhere,
	"RETURN":   TokReturn,
	"ORDER":    TokOrder,
	"BY":       TokBy,
	"LIMIT":    TokLimit,
	"AND":      TokAnd,
	"OR":       TokOr,
	"AS":       TokAs,
	"DISTINCT": TokDistinct,
	"COUNT":    TokCount,
	"CONTAINS": TokContains,
	"STARTS":   TokStarts,
	"ENDS":     TokEnds,
	"WITH":     TokWith,
	"NOT":      TokNot,
	"ASC":      TokAsc,
	"DESC":     TokDesc,
}

var symbols = map[byte]TokenType{
	'(': TokLParen,
	')': TokRParen,
	'[': TokLBracket,
	']': TokRBracket,
	'{': TokLBrace,
	'}': TokRBrace,
	'*': TokStar,
	',': TokComma,
	'|': TokPipe,
	':': TokColon,
	'-': TokDash,
}

// twoChar lists compound operators by their first byte.
var twoChar = map[byte][]struct {
	second byte
	typ    TokenType
}{
	'>': {{'=', TokGTE}},
	'<': {{'=', TokLTE}, {'>', TokNEQ}},
	'=': {{'~', TokRegex}},
	'.': {{'.', TokDotDot}},
}

var oneChar = map[byte]TokenType{'>': TokGT, '<': TokLT, '=': TokEQ, '.': TokDot}

// Lex tokenizes a query. The result always ends with TokEOF.
func Lex(input string) ([]Token, error) {
	var toks []Token
	pos := 0
	emit := func(typ TokenType, val string, at int) {
		toks = append(toks, Token{Type: typ, Value: val, Pos: at})
	}

	for pos < len(input) {
		ch := input[pos]
		switch {
		case unicode.IsSpace(rune(ch)):
			pos++
			continue
		case strings.HasPrefix(input[pos:], "//"):
			for pos < len(input) && input[pos] != '\n' {
				pos++
			}
			continue
		case strings.HasPrefix(input[pos:], "/*"):
			end := strings.Index(input[pos+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment at pos %d", pos)
			}
			pos += end + 4
			continue
		}

		if typ, ok := symbols[ch]; ok {
			// "<-" and "->" are two tokens; only '-' is in symbols.
			emit(typ, string(ch), pos)
			pos++
			continue
		}
		if alts, ok := twoChar[ch]; ok {
			matched := false
			for _, alt := range alts {
				if pos+1 < len(input) && input[pos+1] == alt.second {
					emit(alt.typ, input[pos:pos+2], pos)
					pos += 2
					matched = true
					break
				}
			}
			if !matched {
				emit(oneChar[ch], string(ch), pos)
				pos++
			}
			continue
		}

		switch {
		case ch == '"' || ch == '\'':
			s, next, err := lexString(input, pos)
			if err != nil {
				return nil, err
			}
			emit(TokString, s, pos)
			pos = next
		case ch == '$':
			start := pos + 1
			end := scanIdent(input, start)
			if end == start {
				return nil, fmt.Errorf("expected parameter name after '$' at pos %d", pos)
			}
			emit(TokParam, input[start:end], pos)
			pos = end
		case isDigit(ch):
			end := scanNumber(input, pos)
			emit(TokNumber, input[pos:end], pos)
			pos = end
		case isIdentStart(ch):
			end := scanIdent(input, pos)
			word := input[pos:end]
			if typ, ok := keywords[strings.ToUpper(word)]; ok {
				emit(typ, strings.ToUpper(word), pos)
			} else {
				emit(TokIdent, word, pos)
			}
			pos = end
		case ch == '`':
			end := strings.IndexByte(input[pos+1:], '`')
			if end < 0 {
				return nil, fmt.Errorf("unterminated identifier at pos %d", pos)
			}
			emit(TokIdent, input[pos+1:pos+1+end], pos)
			pos += end + 2
		default:
			return nil, fmt.Errorf("unexpected char %q at pos %d", string(ch), pos)
		}
	}

	emit(TokEOF, "", pos)
	return toks, nil
}

// lexString reads a quoted string starting at pos and returns its unescaped
// value and the offset after the closing quote.
func lexString(input string, pos int) (string, int, error) {
	quote := input[pos]
	var sb strings.Builder
	for i := pos + 1; i < len(input); i++ {
		ch := input[i]
		switch {
		case ch == '\\' && i+1 < len(input):
			i++
			switch input[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(input[i])
			}
		case ch == quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(ch)
		}
	}
	return "", 0, fmt.Errorf("unterminated string at pos %d", pos)
}

// scanNumber accepts integers and decimals, leaving ".." to the range
// operator.
func scanNumber(input string, pos int) int {
	for pos < len(input) && isDigit(input[pos]) {
		pos++
	}
	if pos+1 < len(input) && input[pos] == '.' && isDigit(input[pos+1]) {
		pos++
		for pos < len(input) && isDigit(input[pos]) {
			pos++
		}
	}
	return pos
}

func scanIdent(input string, pos int) int {
	for pos < len(input) && isIdentPart(input[pos]) {
		pos++
	}
	return pos
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
