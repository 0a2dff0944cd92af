package output

import "encoding/json"

// Formatter interface for formatting output
type Formatter interface {
	Format(data any) (string, error)
}

// JSONFormatter renders values as JSON, indented when Pretty is set.
type JSONFormatter struct {
	Pretty bool
}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func NewPrettyFormatter() *JSONFormatter {
	return &JSONFormatter{Pretty: true}
}

func (f *JSONFormatter) Format(data any) (string, error) {
	var (
		out []byte
		err error
	)
	if f.Pretty {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}
