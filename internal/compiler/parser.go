package compiler

import (
	"strconv"
	"strings"
)

// itemKind discriminates statements inside a device block.
type itemKind int

const (
	itemMap itemKind = iota
	itemTapHold
	itemMacro
	itemWhen
	itemWhenNot
)

// arg is one call argument: a string literal or a number.
type arg struct {
	text  string
	num   int
	isNum bool
	line  int
	col   int
}

// item is one parsed statement, possibly with a nested block.
type item struct {
	kind  itemKind
	args  []arg
	block []item
	line  int
	col   int
}

// deviceBlock is one device_start/when_device_start section.
type deviceBlock struct {
	pattern string
	exact   bool
	items   []item
	line    int
}

// parser builds the statement tree. It recovers at statement granularity so
// one bad statement does not hide the rest of the file's diagnostics.
type parser struct {
	toks []token
	pos  int
	errs *ErrorList
}

func parse(src string, errs *ErrorList) []deviceBlock {
	lx := newLexer(src, errs)
	p := &parser{toks: lx.tokens(), errs: errs}
	return p.parseFile()
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) take() token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) atEOF() bool  { return p.peek().kind == tokEOF }

func (p *parser) parseFile() []deviceBlock {
	var blocks []deviceBlock
	for !p.atEOF() {
		t := p.take()
		if t.kind != tokIdent {
			p.errs.add(ErrSyntax, t.line, t.col, "expected statement, got %v", t.kind)
			continue
		}
		switch t.text {
		case "device_start", "when_device_start":
			if b, ok := p.parseDeviceBlock(t); ok {
				blocks = append(blocks, b)
			}
		default:
			p.errs.add(ErrSyntax, t.line, t.col,
				"%q is only valid inside a device block", t.text)
			p.skipCall()
		}
	}
	return blocks
}

func (p *parser) parseDeviceBlock(start token) (deviceBlock, bool) {
	exact := start.text == "device_start"
	endName := "device_end"
	if !exact {
		endName = "when_device_end"
	}

	args, ok := p.parseArgs()
	if !ok || len(args) != 1 || args[0].isNum {
		p.errs.add(ErrSyntax, start.line, start.col, "%s takes one string argument", start.text)
		return deviceBlock{}, false
	}
	b := deviceBlock{pattern: args[0].text, exact: exact, line: start.line}
	if b.pattern == "" {
		p.errs.add(ErrInvalidPattern, args[0].line, args[0].col, "empty device pattern")
	}
	// An exact device name with a '*' would silently turn into a glob at
	// match time.
	if b.exact && strings.Contains(b.pattern, "*") {
		p.errs.add(ErrInvalidPattern, args[0].line, args[0].col,
			"device_start takes an exact name; use when_device_start for patterns")
	}

	for {
		if p.atEOF() {
			p.errs.add(ErrUnterminatedBlock, start.line, start.col,
				"%s(%q) has no matching %s", start.text, b.pattern, endName)
			return b, true
		}
		t := p.take()
		if t.kind != tokIdent {
			p.errs.add(ErrSyntax, t.line, t.col, "expected statement, got %v", t.kind)
			continue
		}
		if t.text == endName {
			p.parseArgs() // consume optional ()
			return b, true
		}
		if t.text == "device_end" || t.text == "when_device_end" {
			p.errs.add(ErrSyntax, t.line, t.col, "%s closes a different block kind", t.text)
			return b, true
		}
		if it, ok := p.parseItem(t); ok {
			b.items = append(b.items, it)
		}
	}
}

func (p *parser) parseItem(t token) (item, bool) {
	switch t.text {
	case "map":
		return p.parseCallItem(t, itemMap, 2)
	case "tap_hold":
		return p.parseCallItem(t, itemTapHold, 4)
	case "macro":
		return p.parseCallItem(t, itemMacro, 2)
	case "when", "when_not":
		kind := itemWhen
		if t.text == "when_not" {
			kind = itemWhenNot
		}
		args, ok := p.parseArgs()
		if !ok || len(args) == 0 {
			p.errs.add(ErrSyntax, t.line, t.col, "%s needs at least one condition", t.text)
			ok = false
		}
		it := item{kind: kind, args: args, line: t.line, col: t.col}
		if brace := p.peek(); brace.kind != tokLBrace {
			p.errs.add(ErrSyntax, t.line, t.col, "%s requires a { } block", t.text)
			return it, false
		}
		p.take()
		for {
			if p.atEOF() {
				p.errs.add(ErrUnterminatedBlock, t.line, t.col, "unterminated %s block", t.text)
				return it, ok
			}
			nt := p.take()
			if nt.kind == tokRBrace {
				return it, ok
			}
			if nt.kind != tokIdent {
				p.errs.add(ErrSyntax, nt.line, nt.col, "expected statement, got %v", nt.kind)
				continue
			}
			if nt.text == "device_end" || nt.text == "when_device_end" {
				p.errs.add(ErrUnterminatedBlock, t.line, t.col, "unterminated %s block", t.text)
				p.pos-- // let the device block see its terminator
				return it, ok
			}
			if sub, subOK := p.parseItem(nt); subOK {
				it.block = append(it.block, sub)
			}
		}
	default:
		p.errs.add(ErrSyntax, t.line, t.col, "unknown statement %q", t.text)
		p.skipCall()
		return item{}, false
	}
}

func (p *parser) parseCallItem(t token, kind itemKind, argc int) (item, bool) {
	args, ok := p.parseArgs()
	if !ok {
		return item{}, false
	}
	if len(args) != argc {
		p.errs.add(ErrSyntax, t.line, t.col, "%s takes %d arguments, got %d", t.text, argc, len(args))
		return item{}, false
	}
	return item{kind: kind, args: args, line: t.line, col: t.col}, true
}

// parseArgs consumes "( arg, arg, ... )". A missing open paren is treated
// as an empty argument list so bare `device_end` parses.
func (p *parser) parseArgs() ([]arg, bool) {
	if p.peek().kind != tokLParen {
		return nil, true
	}
	open := p.take()
	var args []arg
	for {
		t := p.peek()
		switch t.kind {
		case tokRParen:
			p.take()
			return args, true
		case tokEOF:
			p.errs.add(ErrSyntax, open.line, open.col, "unterminated argument list")
			return args, false
		case tokString:
			p.take()
			args = append(args, arg{text: t.text, line: t.line, col: t.col})
		case tokNumber:
			p.take()
			n, _ := strconv.Atoi(t.text)
			args = append(args, arg{text: t.text, num: n, isNum: true, line: t.line, col: t.col})
		case tokComma:
			p.take()
		default:
			p.errs.add(ErrSyntax, t.line, t.col, "unexpected %v in argument list", t.kind)
			p.take()
		}
	}
}

// skipCall discards the argument list of an unrecognized statement.
func (p *parser) skipCall() {
	if p.peek().kind != tokLParen {
		return
	}
	depth := 0
	for !p.atEOF() {
		t := p.take()
		if t.kind == tokLParen {
			depth++
		}
		if t.kind == tokRParen {
			depth--
			if depth == 0 {
				return
			}
		}
	}
}
