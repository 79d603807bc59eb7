package headers

import (
	"strings"
	"unicode"

	"golang.org/x/net/http/httpguts"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

const (
	ProblemEmptyName      = "Header name can't be empty"
	ProblemNameWhitespace = "Header name should not contain whitespaces"
	ProblemNameToken      = "Header name contains invalid characters"
	ProblemEmptyValue     = "Header value should not be empty"
	ProblemNoContentType  = "Content-Type header is not defined"
)

// ValidationError lists every problem found in a header list, one per line.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "\n")
}

// Check returns nil for a well-formed header list. Disabled fields are ignored.
// The content-type requirement applies only when isPayload is set.
func Check(fields []Field, isPayload bool) error {
	return check(fields, true, isPayload)
}

// CheckNames reports only header name problems. Outgoing requests use it
// since an empty value is valid on the wire.
func CheckNames(fields []Field) error {
	return check(fields, false, false)
}

func check(fields []Field, values, isPayload bool) error {
	var (
		emptyName, whitespace, badToken, emptyValue bool
		hasContentType                              bool
	)
	for _, f := range fields {
		if !f.Enabled {
			continue
		}
		switch {
		case f.Name == "":
			emptyName = true
		case strings.IndexFunc(f.Name, unicode.IsSpace) != -1:
			whitespace = true
		case !httpguts.ValidHeaderFieldName(f.Name):
			badToken = true
		}
		if values && f.Value == "" {
			emptyValue = true
		}
		if strings.EqualFold(f.Name, "content-type") {
			hasContentType = true
		}
	}

	var problems []string
	if emptyName {
		problems = append(problems, ProblemEmptyName)
	}
	if whitespace {
		problems = append(problems, ProblemNameWhitespace)
	}
	if badToken {
		problems = append(problems, ProblemNameToken)
	}
	if emptyValue {
		problems = append(problems, ProblemEmptyValue)
	}
	if isPayload && !hasContentType {
		problems = append(problems, ProblemNoContentType)
	}
	if len(problems) == 0 {
		return nil
	}
	return errdef.Wrap(errdef.CodeHeader, &ValidationError{Problems: problems}, "")
}

func CheckText(text string, isPayload bool) error {
	return Check(Parse(text), isPayload)
}
