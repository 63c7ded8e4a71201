package cypher

import (
	"fmt"
	"strconv"
)

// Parser converts a token stream into a Query.
type Parser struct {
	tokens []Token
	pos    int
	params map[string]any
}

// Parse parses a query; $name placeholders are substituted from params.
func Parse(input string, params map[string]any) (*Query, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, fmt.Errorf("lex: %w", err)
	}
	p := &Parser{tokens: tokens, params: params}
	return p.parseQuery()
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	t := p.peek()
	p.pos++
	return t
}

func (p *Parser) accept(typ TokenType) bool {
	if p.peek().Type == typ {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	t := p.advance()
	if t.Type != typ {
		return t, fmt.Errorf("expected %s, got %q at pos %d", typ, t.Value, t.Pos)
	}
	return t, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	if p.peek().Type != TokMatch {
		return nil, fmt.Errorf("expected MATCH at pos %d, got %q", p.peek().Pos, p.peek().Value)
	}
	p.advance()
	pat, err := p.parsePattern()
	if err != nil {
		return nil, fmt.Errorf("match pattern: %w", err)
	}
	q := &Query{Match: &MatchClause{Pattern: pat}}

	if p.accept(TokWhere) {
		if q.Where, err = p.parseWhere(); err != nil {
			return nil, err
		}
	}
	if p.accept(TokReturn) {
		if q.Return, err = p.parseReturn(); err != nil {
			return nil, err
		}
	}
	if t := p.peek(); t.Type != TokEOF {
		return nil, fmt.Errorf("unexpected %q at pos %d: only MATCH ... WHERE ... RETURN is supported", t.Value, t.Pos)
	}
	return q, nil
}

func (p *Parser) parsePattern() (*Pattern, error) {
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pat := &Pattern{Elements: []PatternElement{node}}
	for t := p.peek().Type; t == TokDash || t == TokLT; t = p.peek().Type {
		rel, err := p.parseRel()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		pat.Elements = append(pat.Elements, rel, node)
	}
	return pat, nil
}

// parseRel reads -[...]->, <-[...]- or -[...]-; the bracket is optional.
func (p *Parser) parseRel() (*RelPattern, error) {
	rel := &RelPattern{MinHops: 1, MaxHops: 1}
	leading := p.accept(TokLT)
	if _, err := p.expect(TokDash); err != nil {
		return nil, fmt.Errorf("relationship: %w", err)
	}
	if p.accept(TokLBracket) {
		if err := p.parseRelBody(rel); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokDash); err != nil {
		return nil, fmt.Errorf("relationship: %w", err)
	}
	trailing := p.accept(TokGT)

	switch {
	case leading && trailing:
		return nil, fmt.Errorf("relationship at pos %d points both ways", p.peek().Pos)
	case trailing:
		rel.Direction = DirOutbound
	case leading:
		rel.Direction = DirInbound
	default:
		rel.Direction = DirAny
	}
	return rel, nil
}

func (p *Parser) parseRelBody(rel *RelPattern) error {
	if p.peek().Type == TokIdent {
		rel.Variable = p.advance().Value
	}
	if p.accept(TokColon) {
		for {
			t, err := p.expect(TokIdent)
			if err != nil {
				return fmt.Errorf("relationship type: %w", err)
			}
			rel.Types = append(rel.Types, t.Value)
			if !p.accept(TokPipe) {
				break
			}
			p.accept(TokColon) // [:A|:B]
		}
	}
	if p.accept(TokStar) {
		p.parseHopRange(rel)
	}
	if _, err := p.expect(TokRBracket); err != nil {
		return fmt.Errorf("relationship: %w", err)
	}
	return nil
}

// parseHopRange reads what follows '*': N, N..M, ..M, N.. or nothing.
// A bare N means 1..N.
func (p *Parser) parseHopRange(rel *RelPattern) {
	rel.MinHops, rel.MaxHops = 1, 0
	if p.peek().Type == TokNumber {
		n, _ := strconv.Atoi(p.advance().Value)
		if p.peek().Type != TokDotDot {
			rel.MaxHops = n
			return
		}
		rel.MinHops = n
	}
	if p.accept(TokDotDot) && p.peek().Type == TokNumber {
		rel.MaxHops, _ = strconv.Atoi(p.advance().Value)
	}
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, fmt.Errorf("node pattern: %w", err)
	}
	node := &NodePattern{}
	if p.peek().Type == TokIdent {
		node.Variable = p.advance().Value
	}
	if p.accept(TokColon) {
		t, err := p.expect(TokIdent)
		if err != nil {
			return nil, fmt.Errorf("label: %w", err)
		}
		node.Label = t.Value
	}
	if p.accept(TokLBrace) {
		props, err := p.parseInlineProps()
		if err != nil {
			return nil, err
		}
		node.Props = props
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, fmt.Errorf("node pattern: %w", err)
	}
	return node, nil
}

func (p *Parser) parseInlineProps() (map[string]string, error) {
	props := make(map[string]string)
	for !p.accept(TokRBrace) {
		if len(props) > 0 {
			if _, err := p.expect(TokComma); err != nil {
				return nil, fmt.Errorf("properties: %w", err)
			}
		}
		key, err := p.expect(TokIdent)
		if err != nil {
			return nil, fmt.Errorf("property key: %w", err)
		}
		if _, err := p.expect(TokColon); err != nil {
			return nil, fmt.Errorf("property %q: %w", key.Value, err)
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key.Value, err)
		}
		props[key.Value] = val
	}
	return props, nil
}

// parseValue reads a string, number or parameter.
func (p *Parser) parseValue() (string, error) {
	t := p.advance()
	switch t.Type {
	case TokString, TokNumber:
		return t.Value, nil
	case TokParam:
		v, ok := p.params[t.Value]
		if !ok {
			return "", fmt.Errorf("missing parameter $%s", t.Value)
		}
		return formatValue(v), nil
	}
	return "", fmt.Errorf("expected a value, got %q at pos %d", t.Value, t.Pos)
}

func (p *Parser) parseWhere() (*WhereClause, error) {
	w := &WhereClause{Operator: "AND"}
	for {
		c, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		w.Conditions = append(w.Conditions, c)

		var op string
		switch p.peek().Type {
		case TokAnd:
			op = "AND"
		case TokOr:
			op = "OR"
		default:
			return w, nil
		}
		t := p.advance()
		if len(w.Conditions) > 1 && op != w.Operator {
			return nil, fmt.Errorf("mixing AND and OR at pos %d is not supported", t.Pos)
		}
		w.Operator = op
	}
}

var comparisons = map[TokenType]string{
	TokEQ:       "=",
	TokNEQ:      "<>",
	TokRegex:    "=~",
	TokGT:       ">",
	TokLT:       "<",
	TokGTE:      ">=",
	TokLTE:      "<=",
	TokContains: "CONTAINS",
}

func (p *Parser) parseCondition() (Condition, error) {
	c := Condition{Negate: p.accept(TokNot)}

	v, err := p.expect(TokIdent)
	if err != nil {
		return c, fmt.Errorf("condition: %w", err)
	}
	c.Variable = v.Value
	if _, err := p.expect(TokDot); err != nil {
		return c, fmt.Errorf("condition on %s: %w", c.Variable, err)
	}
	prop, err := p.expect(TokIdent)
	if err != nil {
		return c, fmt.Errorf("condition on %s: %w", c.Variable, err)
	}
	c.Property = prop.Value

	op := p.advance()
	switch op.Type {
	case TokStarts, TokEnds:
		if _, err := p.expect(TokWith); err != nil {
			return c, err
		}
		c.Operator = op.Value + " WITH"
	default:
		var ok bool
		if c.Operator, ok = comparisons[op.Type]; !ok {
			return c, fmt.Errorf("expected comparison operator, got %q at pos %d", op.Value, op.Pos)
		}
	}

	if c.Value, err = p.parseValue(); err != nil {
		return c, fmt.Errorf("condition on %s.%s: %w", c.Variable, c.Property, err)
	}
	return c, nil
}

func (p *Parser) parseReturn() (*ReturnClause, error) {
	r := &ReturnClause{OrderDir: "ASC", Distinct: p.accept(TokDistinct)}
	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return nil, err
		}
		r.Items = append(r.Items, item)
		if !p.accept(TokComma) {
			break
		}
	}

	if p.accept(TokOrder) {
		if _, err := p.expect(TokBy); err != nil {
			return nil, fmt.Errorf("ORDER: %w", err)
		}
		field, err := p.expect(TokIdent)
		if err != nil {
			return nil, fmt.Errorf("ORDER BY: %w", err)
		}
		r.OrderBy = field.Value
		if p.accept(TokDot) {
			prop, err := p.expect(TokIdent)
			if err != nil {
				return nil, fmt.Errorf("ORDER BY: %w", err)
			}
			r.OrderBy += "." + prop.Value
		}
		if p.accept(TokDesc) {
			r.OrderDir = "DESC"
		} else {
			p.accept(TokAsc)
		}
	}

	if p.accept(TokLimit) {
		val, err := p.parseValue()
		if err != nil {
			return nil, fmt.Errorf("LIMIT: %w", err)
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("LIMIT %q is not a non-negative integer", val)
		}
		r.Limit = n
	}
	return r, nil
}

func (p *Parser) parseReturnItem() (ReturnItem, error) {
	var item ReturnItem
	if p.accept(TokCount) {
		item.Func = "COUNT"
		if _, err := p.expect(TokLParen); err != nil {
			return item, fmt.Errorf("COUNT: %w", err)
		}
		if p.accept(TokStar) {
			item.Variable = "*"
		} else {
			v, err := p.expect(TokIdent)
			if err != nil {
				return item, fmt.Errorf("COUNT: %w", err)
			}
			item.Variable = v.Value
		}
		if _, err := p.expect(TokRParen); err != nil {
			return item, fmt.Errorf("COUNT: %w", err)
		}
	} else {
		v, err := p.expect(TokIdent)
		if err != nil {
			return item, fmt.Errorf("RETURN item: %w", err)
		}
		item.Variable = v.Value
		if p.accept(TokDot) {
			prop, err := p.expect(TokIdent)
			if err != nil {
				return item, fmt.Errorf("RETURN %s: %w", item.Variable, err)
			}
			item.Property = prop.Value
		}
	}

	if p.accept(TokAs) {
		alias, err := p.expect(TokIdent)
		if err != nil {
			return item, fmt.Errorf("AS: %w", err)
		}
		item.Alias = alias.Value
	}
	return item, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
