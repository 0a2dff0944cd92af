package taskrunner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"hubrunner/domain/task"
)

// rawOutput is one item of a success payload. Items show up either as bare
// URL strings or as objects keyed by fileUrl or url.
type rawOutput struct {
	FileURL  *string `json:"fileUrl"`
	URL      *string `json:"url"`
	FileType string  `json:"fileType"`
	Type     string  `json:"type"`
}

type rawContainer struct {
	Outputs []json.RawMessage `json:"outputs"`
	FileURL *string           `json:"fileUrl"`
}

// NormalizeOutputs turns the polymorphic success payload into a flat list of
// outputs. Unrecognized items are dropped and an unrecognized payload yields
// an empty list.
func NormalizeOutputs(data json.RawMessage) []task.Output {
	out := []task.Output{}
	if len(data) == 0 {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil {
		return appendItems(out, items)
	}

	var container rawContainer
	if err := json.Unmarshal(data, &container); err != nil {
		return out
	}
	if container.Outputs != nil {
		return appendItems(out, container.Outputs)
	}
	if container.FileURL != nil {
		return append(out, task.Output{FileURL: *container.FileURL})
	}
	return out
}

func appendItems(out []task.Output, items []json.RawMessage) []task.Output {
	for _, raw := range items {
		if o, ok := decodeItem(raw); ok {
			out = append(out, o)
		}
	}
	return out
}

func decodeItem(raw json.RawMessage) (task.Output, bool) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return task.Output{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return task.Output{FileURL: s}, true
	}

	var item rawOutput
	if err := json.Unmarshal(raw, &item); err != nil {
		return task.Output{}, false
	}
	switch {
	case item.FileURL != nil:
		return task.Output{FileURL: *item.FileURL, FileType: item.FileType}, true
	case item.URL != nil:
		// Only url items fall back to the generic type field.
		fileType := item.FileType
		if fileType == "" {
			fileType = item.Type
		}
		return task.Output{FileURL: *item.URL, FileType: fileType}, true
	}
	return task.Output{}, false
}

type failedReason struct {
	NodeName         any `json:"node_name"`
	ExceptionMessage any `json:"exception_message"`
	ExceptionType    any `json:"exception_type"`
}

type failurePayload struct {
	FailedReason *failedReason `json:"failedReason"`
}

const genericFailure = "task execution failed"

// FailureReason extracts the most specific human readable message from a
// failed poll response.
func FailureReason(msg string, data json.RawMessage) string {
	reason := msg
	if reason == "" {
		reason = genericFailure
	}

	var payload failurePayload
	if len(data) == 0 || json.Unmarshal(data, &payload) != nil || payload.FailedReason == nil {
		return reason
	}
	fr := payload.FailedReason

	detail := fr.ExceptionMessage
	if isEmpty(detail) {
		detail = fr.ExceptionType
	}
	if !isEmpty(detail) {
		if s, ok := detail.(string); ok {
			reason = s
		} else if b, err := json.Marshal(detail); err == nil {
			reason = string(b)
		}
	}

	if node, ok := fr.NodeName.(string); ok && node != "" {
		reason = fmt.Sprintf("[%s] %s", node, reason)
	}
	return reason
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	}
	return false
}
