package jnode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Write serializes n to w as JSON, preserving Seq assignment order and
// List element order exactly. KindEmpty nodes are never expected to
// reach here (Validate rejects them first); if one slips through it is
// written as null so serialization never panics mid-stream.
func Write(w io.Writer, n Node) error {
	buf := &bytes.Buffer{}
	writeNode(buf, n, 0)
	_, err := w.Write(buf.Bytes())
	return err
}

// Marshal is the []byte convenience form of Write.
func Marshal(n Node) ([]byte, error) {
	buf := &bytes.Buffer{}
	writeNode(buf, n, 0)
	return buf.Bytes(), nil
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}

func writeNode(buf *bytes.Buffer, n Node, depth int) {
	switch n.Kind {
	case KindEmpty, KindNone:
		buf.WriteString("null")
	case KindBool:
		if n.boolVal {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt:
		buf.WriteString(strconv.FormatInt(n.intVal, 10))
	case KindFloat:
		buf.WriteString(strconv.FormatFloat(n.floatVal, 'g', -1, 64))
	case KindString:
		b, _ := json.Marshal(n.strVal)
		buf.Write(b)
	case KindList:
		if len(n.items) == 0 {
			buf.WriteString("[]")
			return
		}
		buf.WriteString("[\n")
		for i, child := range n.items {
			writeIndent(buf, depth+1)
			writeNode(buf, child, depth+1)
			if i < len(n.items)-1 {
				buf.WriteString(",")
			}
			buf.WriteString("\n")
		}
		writeIndent(buf, depth)
		buf.WriteString("]")
	case KindSeq:
		if len(n.items) == 0 {
			buf.WriteString("{}")
			return
		}
		buf.WriteString("{\n")
		for i, child := range n.items {
			writeIndent(buf, depth+1)
			nb, _ := json.Marshal(child.assignee)
			buf.Write(nb)
			buf.WriteString(": ")
			writeNode(buf, *child.value, depth+1)
			if i < len(n.items)-1 {
				buf.WriteString(",")
			}
			buf.WriteString("\n")
		}
		writeIndent(buf, depth)
		buf.WriteString("}")
	case KindAssignment:
		// Only meaningful inside a Seq; writeNode never recurses into
		// one directly except via the KindSeq branch above.
		panic("jnode: attempted to write a bare assignment")
	}
}

// Parse decodes JSON from r into a Node tree, preserving object key
// order via token-level streaming (encoding/json.Decoder.Token does
// not reorder object members; a generic map[string]any Unmarshal
// would). Every decoded JSON object becomes a KindSeq of
// KindAssignment children; every array becomes a KindList.
func Parse(r io.Reader) (Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	n, err := parseValue(dec)
	if err != nil {
		return Node{}, err
	}
	return n, nil
}

// Unmarshal is the []byte convenience form of Parse.
func Unmarshal(data []byte) (Node, error) {
	return Parse(bytes.NewReader(data))
}

func parseValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Node, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return Node{}, fmt.Errorf("jnode: unexpected delimiter %q", v)
		}
	case nil:
		return None(), nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return Node{}, fmt.Errorf("jnode: invalid number %q: %w", v.String(), err)
		}
		return Float(f), nil
	default:
		return Node{}, fmt.Errorf("jnode: unsupported token type %T", tok)
	}
}

func parseObject(dec *json.Decoder) (Node, error) {
	var assignments []Node
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Node{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Node{}, fmt.Errorf("jnode: object key is not a string: %v", keyTok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return Node{}, err
		}
		assignments = append(assignments, Assign(key, val))
	}
	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return Node{}, err
	}
	return Node{Kind: KindSeq, items: assignments}, nil
}

func parseArray(dec *json.Decoder) (Node, error) {
	var items []Node
	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return Node{}, err
		}
		items = append(items, val)
	}
	if _, err := dec.Token(); err != nil {
		return Node{}, err
	}
	return Node{Kind: KindList, items: items}, nil
}
