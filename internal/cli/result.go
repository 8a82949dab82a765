package cli

import (
	"errors"
	"fmt"
	"io"

	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

type detail struct {
	key   string
	value any
}

// Result is a one-line outcome of a mutation, e.g. "course registered",
// with optional details in insertion order.
type Result struct {
	out     *Output
	meta    Meta
	message string
	details []detail
}

func (r *Result) With(key string, value any) *Result {
	r.details = append(r.details, detail{key: key, value: value})
	return r
}

func (r *Result) Render() error {
	return r.out.Render(r)
}

func (r *Result) Meta() Meta {
	return r.meta
}

func (r *Result) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.message); err != nil {
		return err
	}
	return writeDetails(w, "  %-*s  %s\n", r.details)
}

func (r *Result) RenderJSON() any {
	result := make(map[string]any, len(r.details)+1)
	result["message"] = r.message
	for _, d := range r.details {
		result[toJSONKey(d.key)] = jsonValue(d.value)
	}
	return result
}

func (r *Result) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "**%s**\n\n", r.message); err != nil {
		return err
	}
	for _, d := range r.details {
		if _, err := fmt.Fprintf(w, "- **%s:** %s\n", d.key, formatMarkdownValue(d.value)); err != nil {
			return err
		}
	}
	return nil
}

func writeDetails(w io.Writer, format string, details []detail) error {
	width := 0
	for _, d := range details {
		width = max(width, len(d.key)+1)
	}
	for _, d := range details {
		if _, err := fmt.Fprintf(w, format, width, d.key+":", formatValue(d.value)); err != nil {
			return err
		}
	}
	return nil
}

// Error is a structured failure. Registry errors carry their code
// automatically.
type Error struct {
	out     *Output
	meta    Meta
	err     error
	code    string
	details []detail
}

// WithCode overrides the error code.
func (e *Error) WithCode(code string) *Error {
	e.code = code
	return e
}

func (e *Error) With(key string, value any) *Error {
	e.details = append(e.details, detail{key: key, value: value})
	return e
}

func (e *Error) Render() error {
	return e.out.Render(e)
}

func (e *Error) Meta() Meta {
	return e.meta
}

// Code returns the explicit code, or the registry code carried by the error.
func (e *Error) Code() string {
	if e.code != "" {
		return e.code
	}
	var de *skerrors.Error
	if errors.As(e.err, &de) {
		return string(de.Code)
	}
	return ""
}

func (e *Error) RenderText(w io.Writer) error {
	if code := e.Code(); code != "" {
		if _, err := fmt.Fprintf(w, "Error [%s]: %s\n", code, message(e.err)); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(w, "Error: %v\n", e.err); err != nil {
		return err
	}
	return writeDetails(w, "  %-*s %s\n", e.details)
}

func (e *Error) RenderJSON() any {
	result := map[string]any{"error": message(e.err)}
	if code := e.Code(); code != "" {
		result["code"] = code
	}
	for _, d := range e.details {
		result[toJSONKey(d.key)] = jsonValue(d.value)
	}
	return result
}

func (e *Error) RenderMarkdown(w io.Writer) error {
	if code := e.Code(); code != "" {
		if _, err := fmt.Fprintf(w, "> **Error [%s]:** %s\n", code, message(e.err)); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(w, "> **Error:** %v\n", e.err); err != nil {
		return err
	}
	if len(e.details) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		for _, d := range e.details {
			if _, err := fmt.Fprintf(w, "- %s: %s\n", d.key, formatValue(d.value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// message strips the code prefix registry errors put in Error().
func message(err error) string {
	var e *skerrors.Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
