package jsonval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SyntaxError describes a JSON parse failure with a 1-based source position.
type SyntaxError struct {
	Msg    string
	Offset int64
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d, column %d", e.Msg, e.Line, e.Column)
	}
	return e.Msg
}

// Parse decodes text into order-preserving values: *Object for objects,
// []interface{} for arrays, json.Number, string, bool or nil for leaves.
func Parse(text string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	value, err := parseValue(dec)
	if err != nil {
		return nil, positioned(text, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		off := dec.InputOffset()
		line, col := lineColumn(text, off)
		return nil, &SyntaxError{Msg: "unexpected data after top-level value", Offset: off, Line: line, Column: col}
	}
	return value, nil
}

func parseValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := NewObject()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string: %v", keyTok)
			}
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		if _, err := dec.Token(); err != nil { // closing brace
			return nil, err
		}
		return obj, nil
	case '[':
		arr := make([]interface{}, 0)
		for dec.More() {
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil { // closing bracket
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// positioned converts decoder errors into SyntaxError with line/column.
func positioned(text string, err error) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		line, col := lineColumn(text, syn.Offset)
		return &SyntaxError{Msg: syn.Error(), Offset: syn.Offset, Line: line, Column: col}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		off := int64(len(text))
		line, col := lineColumn(text, off)
		return &SyntaxError{Msg: "unexpected end of input", Offset: off, Line: line, Column: col}
	}
	return err
}

func lineColumn(text string, offset int64) (line, column int) {
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}
	line, column = 1, 1
	for _, ch := range text[:offset] {
		if ch == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
