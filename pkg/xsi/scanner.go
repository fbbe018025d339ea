package xsi

import "errors"

// errEndOfBlock is returned by nextHeader when a closing brace ends the
// current block. It never escapes the parser.
var errEndOfBlock = errors.New("end of block")

// blockHeader is one "Name param ... {" block introduction.
type blockHeader struct {
	name   string
	params []string
}

// nextHeader scans forward to the next sibling block header at the
// current nesting depth. It returns errEndOfBlock when a closing brace
// is found first, and io.EOF at end of stream; the caller decides
// whether stream end here is legitimate or a truncated file.
//
// A header is an optional type name and zero or more parameter words
// terminated by an opening brace. Comma and semicolon runs between
// words are treated as empty separators.
func (l *lexer) nextHeader() (*blockHeader, error) {
	var word []byte
	var params []string
	var name string
	haveName := false

	flush := func() {
		if len(word) == 0 {
			return
		}
		if !haveName {
			name = string(word)
			haveName = true
		} else {
			params = append(params, string(word))
		}
		word = word[:0]
	}

	for {
		c, err := l.readChar()
		if err != nil {
			return nil, err
		}

		switch {
		case isSpace(c) || c == '{' || c == '}':
			flush()
		case len(word) == 0 && (c == ',' || c == ';'):
			// Separator punctuation before a word starts.
		default:
			word = append(word, c)
			if len(word) > maxWord {
				return nil, l.errf(ErrWordTooLong, "%d bytes", maxWord)
			}
		}

		if c == '{' {
			return &blockHeader{name: name, params: params}, nil
		}
		if c == '}' {
			return nil, errEndOfBlock
		}
	}
}
