// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"bytes"
	"strconv"
	"strings"
)

// condenseStack reduces the output of runtime.Stack to one "function:line"
// entry per frame and merges goroutines with identical stacks.
func condenseStack(buf []byte) []byte {
	type stack struct {
		state  string
		frames []string
		count  int
	}

	var order []*stack
	seen := map[string]*stack{}

	for _, block := range bytes.Split(bytes.TrimSpace(buf), []byte("\n\n")) {
		lines := strings.Split(string(block), "\n")
		if len(lines) == 0 || !strings.HasPrefix(lines[0], "goroutine ") {
			continue
		}

		state := ""
		if start, end := strings.IndexByte(lines[0], '['), strings.LastIndexByte(lines[0], ']'); start >= 0 && end > start {
			state = lines[0][start : end+1]
		}

		var frames []string
		function := ""
		for i := 1; i < len(lines); i++ {
			line := lines[i]
			switch {
			case strings.HasPrefix(line, "created by"):
				i++
			case strings.HasPrefix(line, "\t"):
				location := line[strings.LastIndexByte(line, ':')+1:]
				if n := strings.IndexByte(location, ' '); n >= 0 {
					location = location[:n]
				}
				frames = append(frames, function+":"+location)
			default:
				function = line
				if n := strings.LastIndexByte(function, '('); n > 0 {
					function = function[:n]
				}
			}
		}

		key := state + "\n" + strings.Join(frames, "\n")
		if existing, ok := seen[key]; ok {
			existing.count++
			continue
		}
		entry := &stack{state: state, frames: frames, count: 1}
		seen[key] = entry
		order = append(order, entry)
	}

	if len(order) == 0 {
		return buf
	}

	var out bytes.Buffer
	for _, entry := range order {
		out.WriteString(strconv.Itoa(entry.count))
		out.WriteString(" goroutines ")
		out.WriteString(entry.state)
		out.WriteByte('\n')
		for _, frame := range entry.frames {
			out.WriteByte('\t')
			out.WriteString(frame)
			out.WriteByte('\n')
		}
	}
	return out.Bytes()
}
