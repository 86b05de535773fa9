// Package authz loads authorization requests for the enforcer. Requests come
// from a file (JSON or JSON with comments), stdin, or an inline string; every
// source goes through the same parse, validate and encode path so equal
// objects always produce equal payloads.
package authz

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"
)

var (
	// ErrInvalidRequest is returned for input that is not a valid request.
	ErrInvalidRequest = errors.New("invalid authorization request")

	// ErrNoInput means neither a file nor inline JSON was given.
	ErrNoInput = errors.New("one of --file or --json is required")

	// ErrConflictingInput means both a file and inline JSON were given.
	ErrConflictingInput = errors.New("--file and --json are mutually exclusive")
)

const schemaURL = "https://tessera.local/schema/authorize-request.json"

//go:embed schema/request.schema.json
var requestSchema []byte

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(requestSchema)); err != nil {
			schemaErr = fmt.Errorf("load request schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Source names where a request document comes from. File "-" means Stdin.
type Source struct {
	File   string
	Inline string
	Stdin  io.Reader
}

// Empty reports whether no input was given.
func (s Source) Empty() bool {
	return s.File == "" && strings.TrimSpace(s.Inline) == ""
}

// Read returns the raw document.
func (s Source) Read() ([]byte, error) {
	switch {
	case s.File != "" && s.Inline != "":
		return nil, ErrConflictingInput
	case s.File == "-":
		if s.Stdin == nil {
			return nil, fmt.Errorf("read stdin: no input stream")
		}
		data, err := io.ReadAll(s.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	case s.File != "":
		data, err := os.ReadFile(s.File)
		if err != nil {
			return nil, fmt.Errorf("read request file: %w", err)
		}
		return data, nil
	case strings.TrimSpace(s.Inline) != "":
		return []byte(s.Inline), nil
	}
	return nil, ErrNoInput
}

// Load reads and parses a single request.
func Load(src Source) (json.RawMessage, error) {
	data, err := src.Read()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadBatch reads and parses a batch request.
func LoadBatch(src Source) (json.RawMessage, error) {
	data, err := src.Read()
	if err != nil {
		return nil, err
	}
	return ParseBatch(data)
}

// Parse validates a single request document and returns its canonical
// encoding.
func Parse(data []byte) (json.RawMessage, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	return encode(doc)
}

// ParseBatch accepts either an array of requests or {"requests": [...]} and
// returns the canonical {"requests": [...]} encoding. Each element is
// validated on its own.
func ParseBatch(data []byte) (json.RawMessage, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}

	var requests []any
	switch v := doc.(type) {
	case []any:
		requests = v
	case map[string]any:
		list, ok := v["requests"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: batch object needs a \"requests\" array", ErrInvalidRequest)
		}
		requests = list
	default:
		return nil, fmt.Errorf("%w: batch must be an array or an object", ErrInvalidRequest)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", ErrInvalidRequest)
	}

	for i, req := range requests {
		if err := validate(req); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}
	return encode(map[string]any{"requests": requests})
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidRequest)
	}
	return doc, nil
}

func validate(doc any) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalidRequest, describe(verr))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// describe returns the most specific validation failure.
func describe(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	loc := verr.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, verr.Message)
}

func encode(doc any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
