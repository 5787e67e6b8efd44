// Package callback encodes structured button actions into compact callback tokens.
//
// A token is the namespace, the action and every declared parameter joined by ':',
// with absent optional parameters left empty, e.g. "translate:select_lang:fr:French".
package callback

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxTokenLen is the transport limit on callback payloads.
const MaxTokenLen = 64

// Separator joins token parts.
const Separator = ":"

// Namespaces.
const (
	NSStart       = "start"
	NSTranslate   = "translate"
	NSGPT         = "gpt"
	NSHelp        = "help"
	NSImage       = "image"
	NSPersonality = "personality"
	NSQuiz        = "quiz"
	NSRandom      = "random"
	NSVocabulary  = "vocabulary"
)

// Parameter names.
const (
	ParamLanguageCode = "language_code"
	ParamLanguageName = "language_name"
	ParamKey          = "key"
	ParamTopicKey     = "topic_key"
)

// FieldKind is the declared type of a parameter.
type FieldKind int

const (
	String FieldKind = iota
	Int
)

// Field declares one optional positional parameter.
type Field struct {
	Name string
	Kind FieldKind
}

// Schema declares a namespace and its parameters, in token order after the action.
type Schema struct {
	Namespace string
	Fields    []Field
}

// Params maps parameter names to values. Absent keys are unset optional parameters.
type Params map[string]string

// Data is a decoded token.
type Data struct {
	Namespace string
	Action    string
	Params    Params
}

// Param returns the named parameter, or "".
func (d Data) Param(name string) string {
	return d.Params[name]
}

// DecodeError reports a token that does not fit its namespace's declared shape.
type DecodeError struct {
	Token  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("callback: cannot decode %q: %s", e.Token, e.Reason)
}

// Codec encodes and decodes tokens for a fixed set of namespaces.
type Codec struct {
	schemas map[string]Schema
}

// NewCodec builds a codec for the given schemas.
func NewCodec(schemas ...Schema) *Codec {
	c := &Codec{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		c.schemas[s.Namespace] = s
	}
	return c
}

// Schemas of the bot's namespaces.
var defaultSchemas = []Schema{
	{Namespace: NSStart},
	{Namespace: NSTranslate, Fields: []Field{{ParamLanguageCode, String}, {ParamLanguageName, String}}},
	{Namespace: NSGPT},
	{Namespace: NSHelp},
	{Namespace: NSImage},
	{Namespace: NSPersonality, Fields: []Field{{ParamKey, String}}},
	{Namespace: NSQuiz, Fields: []Field{{ParamTopicKey, String}}},
	{Namespace: NSRandom},
	{Namespace: NSVocabulary},
}

var defaultCodec = NewCodec(defaultSchemas...)

// Default returns the codec for the bot's namespaces.
func Default() *Codec { return defaultCodec }

// Encode builds a token. It fails on an unknown namespace, an undeclared parameter, a value
// containing the separator, a non-numeric Int value, or a token over MaxTokenLen.
func (c *Codec) Encode(namespace, action string, params Params) (string, error) {
	schema, ok := c.schemas[namespace]
	if !ok {
		return "", fmt.Errorf("callback: unknown namespace %q", namespace)
	}
	if action == "" || strings.Contains(action, Separator) {
		return "", fmt.Errorf("callback: invalid action %q", action)
	}
	for name := range params {
		if !schema.declares(name) {
			return "", fmt.Errorf("callback: %s has no parameter %q", namespace, name)
		}
	}

	parts := make([]string, 0, 2+len(schema.Fields))
	parts = append(parts, namespace, action)
	for _, f := range schema.Fields {
		v := params[f.Name]
		if strings.Contains(v, Separator) {
			return "", fmt.Errorf("callback: %s value %q contains separator", f.Name, v)
		}
		if v != "" && f.Kind == Int {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", fmt.Errorf("callback: %s must be an integer, got %q", f.Name, v)
			}
		}
		parts = append(parts, v)
	}
	token := strings.Join(parts, Separator)
	if len(token) > MaxTokenLen {
		return "", fmt.Errorf("callback: token %q exceeds %d bytes", token, MaxTokenLen)
	}
	return token, nil
}

// MustEncode is Encode for statically known keyboards. It panics on error.
func (c *Codec) MustEncode(namespace, action string, params Params) string {
	token, err := c.Encode(namespace, action, params)
	if err != nil {
		panic(err)
	}
	return token
}

// Decode parses a token. Failures are *DecodeError.
func (c *Codec) Decode(token string) (Data, error) {
	parts := strings.Split(token, Separator)
	if len(parts) < 2 {
		return Data{}, &DecodeError{Token: token, Reason: "missing action"}
	}
	schema, ok := c.schemas[parts[0]]
	if !ok {
		return Data{}, &DecodeError{Token: token, Reason: "unknown namespace"}
	}
	if parts[1] == "" {
		return Data{}, &DecodeError{Token: token, Reason: "empty action"}
	}
	if want := 2 + len(schema.Fields); len(parts) != want {
		return Data{}, &DecodeError{Token: token, Reason: fmt.Sprintf("expected %d parts, got %d", want, len(parts))}
	}

	d := Data{Namespace: parts[0], Action: parts[1], Params: Params{}}
	for i, f := range schema.Fields {
		v := parts[2+i]
		if v == "" {
			continue
		}
		if f.Kind == Int {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return Data{}, &DecodeError{Token: token, Reason: fmt.Sprintf("%s is not an integer", f.Name)}
			}
		}
		d.Params[f.Name] = v
	}
	return d, nil
}

// Matcher reports whether a token decodes into one of the listed actions of a namespace.
type Matcher func(token string) (Data, bool)

// Match returns a Matcher for namespace and actions. With no actions any action matches.
// Undecodable tokens never match.
func (c *Codec) Match(namespace string, actions ...string) Matcher {
	return func(token string) (Data, bool) {
		d, err := c.Decode(token)
		if err != nil || d.Namespace != namespace {
			return Data{}, false
		}
		if len(actions) == 0 {
			return d, true
		}
		for _, a := range actions {
			if d.Action == a {
				return d, true
			}
		}
		return Data{}, false
	}
}

func (s Schema) declares(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
