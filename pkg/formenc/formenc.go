// Package formenc turns nested payloads into the flat, bracket-indexed form fields the
// merchant backend expects for multipart uploads, e.g. skus[0][sku] or tags[].
package formenc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedRoot = errors.New("form payload root must be a map or struct")

// File is a binary field. Any payload containing one is sent as multipart.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Field is one flattened key/value pair. Exactly one of Value or File is meaningful.
type Field struct {
	Key   string
	Value string
	File  *File
}

var (
	fileType    = reflect.TypeOf(File{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	timeType    = reflect.TypeOf(time.Time{})
)

// rootKey wraps every payload so the encoder indexes all slices the same way,
// including scalar slices directly under a struct root.
const rootKey = "root"

const filePlaceholder = "\x00file:"

// HasFile reports whether any value inside v is a File.
func HasFile(v any) bool {
	fields, err := Flatten(v)
	if err != nil {
		return false
	}
	for _, f := range fields {
		if f.File != nil {
			return true
		}
	}
	return false
}

// newEncoder builds a form encoder emitting key[field] namespaces. Files are
// collected into files and left in the values as placeholders.
func newEncoder(files *[]File) *form.Encoder {
	enc := form.NewEncoder()
	enc.SetNamespacePrefix("[")
	enc.SetNamespaceSuffix("]")
	enc.RegisterTagNameFunc(func(sf reflect.StructField) string {
		if tag := sf.Tag.Get("form"); tag != "" {
			return tag
		}
		return sf.Tag.Get("json")
	})
	enc.RegisterCustomTypeFunc(func(x any) ([]string, error) {
		if x.(bool) {
			return []string{"1"}, nil
		}
		return []string{"0"}, nil
	}, true)
	enc.RegisterCustomTypeFunc(func(x any) ([]string, error) {
		return []string{x.(decimal.Decimal).String()}, nil
	}, decimal.Decimal{})
	enc.RegisterCustomTypeFunc(func(x any) ([]string, error) {
		return []string{string(x.([]byte))}, nil
	}, []byte(nil))
	enc.RegisterCustomTypeFunc(func(x any) ([]string, error) {
		*files = append(*files, x.(File))
		return []string{filePlaceholder + strconv.Itoa(len(*files)-1)}, nil
	}, File{})
	return enc
}

// Flatten walks a map or struct and produces fields in a stable order.
// Arrays of objects become key[i][field]; arrays of scalars become key[].
// Booleans are sent as 1/0 and nil values are skipped.
func Flatten(v any) ([]Field, error) {
	root, kind := form.ExtractType(reflect.ValueOf(v))
	if kind != reflect.Map && kind != reflect.Struct {
		return nil, ErrUnsupportedRoot
	}
	if t := root.Type(); t == fileType || t == decimalType || t == timeType {
		return nil, ErrUnsupportedRoot
	}

	var files []File
	values, err := newEncoder(&files).Encode(map[string]any{rootKey: v})
	if err != nil {
		return nil, fmt.Errorf("formenc: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	prefix := "[" + rootKey + "]"
	out := make([]Field, 0, len(keys))
	for _, raw := range keys {
		key := fieldKey(strings.TrimPrefix(raw, prefix))
		for _, val := range values[raw] {
			if idx, ok := strings.CutPrefix(val, filePlaceholder); ok {
				n, err := strconv.Atoi(idx)
				if err != nil || n >= len(files) {
					return nil, fmt.Errorf("formenc: bad file reference at %q", key)
				}
				out = append(out, Field{Key: key, File: &files[n]})
				continue
			}
			out = append(out, Field{Key: key, Value: val})
		}
	}
	return out, nil
}

// fieldKey turns "[name][0][sku]" into "name[0][sku]" and a trailing scalar
// index such as "[tags][1]" into "tags[]".
func fieldKey(ns string) string {
	segs := segments(ns)
	if len(segs) == 0 {
		return ns
	}
	var b strings.Builder
	b.WriteString(segs[0])
	for i, seg := range segs[1:] {
		if i == len(segs)-2 && isIndex(seg) {
			b.WriteString("[]")
			break
		}
		b.WriteString("[" + seg + "]")
	}
	return b.String()
}

func segments(ns string) []string {
	return strings.FieldsFunc(ns, func(r rune) bool { return r == '[' || r == ']' })
}

func isIndex(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// lessKey orders namespaces segment by segment, comparing indexes numerically.
func lessKey(a, b string) bool {
	sa, sb := segments(a), segments(b)
	for i := 0; i < len(sa) && i < len(sb); i++ {
		if sa[i] == sb[i] {
			continue
		}
		na, errA := strconv.Atoi(sa[i])
		nb, errB := strconv.Atoi(sb[i])
		if errA == nil && errB == nil {
			return na < nb
		}
		return sa[i] < sb[i]
	}
	return len(sa) < len(sb)
}

// Body is an encoded request body.
type Body struct {
	Reader      io.Reader
	ContentType string
	Multipart   bool
}

// Encode picks multipart when the payload carries a file and JSON otherwise.
// extra fields (such as a method override) are appended to multipart bodies only.
func Encode(v any, extra ...Field) (*Body, error) {
	if !HasFile(v) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &Body{Reader: bytes.NewReader(raw), ContentType: "application/json"}, nil
	}

	fields, err := Flatten(v)
	if err != nil {
		return nil, err
	}
	fields = append(fields, extra...)

	buf, contentType, err := Multipart(fields)
	if err != nil {
		return nil, err
	}
	return &Body{Reader: buf, ContentType: contentType, Multipart: true}, nil
}

// Multipart writes fields in order as a multipart/form-data body.
func Multipart(fields []Field) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range fields {
		if f.File == nil {
			if err := w.WriteField(f.Key, f.Value); err != nil {
				return nil, "", err
			}
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(f.Key), escapeQuotes(f.File.Name)))
		ct := f.File.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.File.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
