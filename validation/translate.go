package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/c360studio/intake/intake"
)

var quotedName = regexp.MustCompile(`'([^']+)'`)

// translate converts one leaf diagnostic from the schema validator into one
// or more FieldError values. A single "required" diagnostic can name
// several missing properties at once; each becomes its own FieldError so
// the partitioning in §4.2 (one path per error) holds.
func translate(leaf *jsonschema.ValidationError) []intake.FieldError {
	keyword := lastKeyword(leaf.KeywordLocation)
	container := jsonPointerToPath(leaf.InstanceLocation)

	switch keyword {
	case "required":
		names := quotedName.FindAllStringSubmatch(leaf.Message, -1)
		if len(names) == 0 {
			return []intake.FieldError{{
				Path:     container,
				Code:     intake.CodeRequired,
				Message:  leaf.Message,
				Expected: "required field",
				Received: nil,
			}}
		}
		out := make([]intake.FieldError, 0, len(names))
		for _, m := range names {
			out = append(out, intake.FieldError{
				Path:     joinPath(container, m[1]),
				Code:     intake.CodeRequired,
				Message:  "missing required field",
				Expected: "required field",
				Received: nil,
			})
		}
		return out

	case "type":
		expected, received := splitTypeMismatch(leaf.Message)
		return []intake.FieldError{{
			Path:     container,
			Code:     intake.CodeInvalidType,
			Message:  leaf.Message,
			Expected: expected,
			Received: received,
		}}

	case "format":
		return []intake.FieldError{{
			Path:     container,
			Code:     intake.CodeInvalidFmt,
			Message:  leaf.Message,
			Expected: formatName(leaf.Message),
		}}

	case "pattern":
		return []intake.FieldError{{
			Path:     container,
			Code:     intake.CodeInvalidFmt,
			Message:  leaf.Message,
			Expected: "pattern: " + patternOf(leaf.Message),
		}}

	case "enum", "const":
		return []intake.FieldError{{
			Path:     container,
			Code:     intake.CodeInvalidVal,
			Message:  leaf.Message,
			Expected: leaf.Message,
		}}

	case "minLength":
		fe := intake.FieldError{Path: container, Code: intake.CodeTooShort, Message: leaf.Message}
		if expected, received, ok := splitLengthBound(leaf.Message); ok {
			fe.Expected = expected
			fe.Received = received
		}
		return []intake.FieldError{fe}
	case "maxLength":
		fe := intake.FieldError{Path: container, Code: intake.CodeTooLong, Message: leaf.Message}
		if expected, received, ok := splitLengthBound(leaf.Message); ok {
			fe.Expected = expected
			fe.Received = received
		}
		return []intake.FieldError{fe}

	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "minItems", "maxItems":
		return []intake.FieldError{{
			Path:     container,
			Code:     intake.CodeInvalidVal,
			Message:  leaf.Message,
			Expected: keyword,
		}}

	default:
		return []intake.FieldError{{
			Path:    container,
			Code:    intake.CodeCustom,
			Message: leaf.Message,
		}}
	}
}

// lastKeyword extracts the final path segment of a keyword location, e.g.
// "/properties/email/format" -> "format", "/required" -> "required".
func lastKeyword(loc string) string {
	loc = strings.TrimRight(loc, "/")
	idx := strings.LastIndex(loc, "/")
	if idx < 0 {
		return loc
	}
	return loc[idx+1:]
}

// jsonPointerToPath converts a JSON pointer instance location (e.g.
// "/contact/email" or "/items/0/name") into dot-notation with array
// indices stringified in place ("contact.email", "items.0.name"). The root
// location ("" or "/") maps to the empty path.
func jsonPointerToPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "#")
	if pointer == "" || pointer == "/" {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return strings.Join(parts, ".")
}

// joinPath appends a property name to a container path, per §4.2: the
// missing property name is appended to the container's path (root: just
// the property name).
func joinPath(container, name string) string {
	if container == "" {
		return name
	}
	return container + "." + name
}

// typeMismatch matches santhosh-tekuri/jsonschema/v5's "type" keyword
// message, e.g. "expected string, but got integer" (or, for a union of
// declared types, "expected string or integer, but got boolean").
var typeMismatch = regexp.MustCompile(`^expected (.+), but got (\w+)$`)

func splitTypeMismatch(message string) (expected, received string) {
	m := typeMismatch.FindStringSubmatch(message)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// lengthBound matches santhosh-tekuri/jsonschema/v5's "minLength"/
// "maxLength" keyword messages, e.g. "length must be >= 3, but got 1".
var lengthBound = regexp.MustCompile(`^length must be (?:>=|<=) (\d+), but got (\d+)$`)

func splitLengthBound(message string) (expected, received int, ok bool) {
	m := lengthBound.FindStringSubmatch(message)
	if m == nil {
		return 0, 0, false
	}
	expected, errExpected := strconv.Atoi(m[1])
	received, errReceived := strconv.Atoi(m[2])
	if errExpected != nil || errReceived != nil {
		return 0, 0, false
	}
	return expected, received, true
}

func formatName(message string) string {
	// Messages look like `'...' is not valid 'email'` — pull the quoted
	// format name, falling back to the raw message if the shape changes.
	matches := quotedName.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return message
	}
	return matches[len(matches)-1][1]
}

var patternLiteral = regexp.MustCompile(`does not match pattern '(.*)'`)

func patternOf(message string) string {
	m := patternLiteral.FindStringSubmatch(message)
	if m == nil {
		return message
	}
	return m[1]
}
