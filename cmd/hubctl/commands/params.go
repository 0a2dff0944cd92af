package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"hubrunner/domain/task"

	"github.com/mattn/go-shellwords"
)

// parseParam reads one "nodeId:fieldName=value" assignment.
func parseParam(s string) (task.NodeInfo, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return task.NodeInfo{}, fmt.Errorf("invalid param %q: expected nodeId:fieldName=value", s)
	}
	nodeID, fieldName, ok := strings.Cut(key, ":")
	if !ok || nodeID == "" || fieldName == "" {
		return task.NodeInfo{}, fmt.Errorf("invalid param %q: expected nodeId:fieldName=value", s)
	}
	return task.NodeInfo{NodeID: nodeID, FieldName: fieldName, FieldValue: value}, nil
}

func parseParams(raw []string) ([]task.NodeInfo, error) {
	params := make([]task.NodeInfo, 0, len(raw))
	for _, s := range raw {
		p, err := parseParam(s)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

// mergeParams overlays extra onto base, matching on node and field.
func mergeParams(base, extra []task.NodeInfo) []task.NodeInfo {
	out := append([]task.NodeInfo(nil), base...)
	for _, p := range extra {
		replaced := false
		for i := range out {
			if out[i].NodeID == p.NodeID && out[i].FieldName == p.FieldName {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// readParamSets parses a batch file. Each non-empty line not starting with
// '#' is one parameter set of shell-quoted assignments, for example:
//
//	6:text="a red fox" 3:seed=42
func readParamSets(path string, base []task.NodeInfo) ([][]task.NodeInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sets [][]task.NodeInfo
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		words, err := shellwords.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		params, err := parseParams(words)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		sets = append(sets, mergeParams(base, params))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s contains no parameter sets", path)
	}
	return sets, nil
}
