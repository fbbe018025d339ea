package xsi

import (
	"bufio"
	"fmt"
	"io"
)

// maxWord bounds the length of a single data word. It exists to stop
// runaway reads on corrupt input.
const maxWord = 128

// lexer splits a character stream into words. Words are delimited by
// space, tab, newline, comma and semicolon; single- and double-quoted
// spans are literal. Carriage returns are never significant.
type lexer struct {
	r    *bufio.Reader
	name string
	line int
	col  int
}

func newLexer(r io.Reader, name string) *lexer {
	return &lexer{r: bufio.NewReader(r), name: name, line: 1, col: 1}
}

// errf builds a fatal ParseError at the current position.
func (l *lexer) errf(sentinel error, format string, args ...any) error {
	return &ParseError{
		Name: l.name,
		Line: l.line,
		Col:  l.col,
		Msg:  fmt.Sprintf(format, args...),
		Err:  sentinel,
	}
}

// readChar returns the next significant byte, skipping carriage returns
// and maintaining the line/column counters.
func (l *lexer) readChar() (byte, error) {
	for {
		c, err := l.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if c == '\r' {
			continue
		}
		if c == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		return c, nil
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

// readWord returns the next word, or io.EOF at end of stream. Leading
// delimiters are swallowed. A quote is closed by the matching quote
// character; a newline inside a quote is tolerated and dropped rather
// than treated as an error.
func (l *lexer) readWord() (string, error) {
	var word []byte
	var quote byte

	for {
		c, err := l.readChar()
		if err != nil {
			return "", err
		}

		if quote != 0 {
			if c == '\n' {
				continue
			}
			if c == quote {
				return string(word), nil
			}
			word = append(word, c)
			if len(word) > maxWord {
				return "", l.errf(ErrWordTooLong, "%d bytes", maxWord)
			}
			continue
		}

		if c == '\'' || c == '"' {
			quote = c
			continue
		}

		if isSpace(c) || c == ',' || c == ';' {
			if len(word) > 0 {
				return string(word), nil
			}
			continue
		}

		word = append(word, c)
		if len(word) > maxWord {
			return "", l.errf(ErrWordTooLong, "%d bytes", maxWord)
		}
	}
}
