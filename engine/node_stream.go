package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oarkflow/convert"

	"github.com/oarkflow/pipeline/pkg/utils"
)

var streamNamePattern = regexp.MustCompile(`\{([^{}]+)\}`)

// runStreamSink is the leaf stream node: flatten, resolve any "{field}"
// placeholders in the stream name against the record, and emit the accepted
// record on the shared result channel tagged with its original index.
func (t *task) runStreamSink() {
	params := t.node.node.Stream
	org := params.Org
	if org == "" {
		org = t.org
	}
	for {
		it, ok := t.receive()
		if !ok {
			return
		}
		if !t.ensureFlattened(&it) {
			continue
		}
		name := params.Name
		if strings.Contains(name, "{") {
			resolved, err := resolveStreamName(name, it.record)
			if err != nil {
				t.reportError(err.Error())
				continue
			}
			name = resolved
		}
		if t.pipeline.limits.LowercaseStreamNames {
			name = strings.ToLower(name)
		}
		t.emit(routedRecord{
			index:  it.index,
			dest:   DestinationStream{Org: org, Name: name, Type: params.Type},
			record: it.record,
		})
	}
}

// resolveStreamName substitutes "{field}" groups with the referenced
// field's string form, left to right. A template that is one complete
// placeholder resolves directly. Missing fields and empty results reject
// the record.
func resolveStreamName(template string, rec utils.Record) (string, error) {
	if strings.HasPrefix(template, "{") && strings.HasSuffix(template, "}") &&
		strings.Count(template, "{") == 1 && strings.Count(template, "}") == 1 {
		field := template[1 : len(template)-1]
		v, ok := utils.GetField(rec, field)
		if !ok {
			return "", fmt.Errorf("stream name field %q not found in record", field)
		}
		s, _ := convert.ToString(v)
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("stream name field %q resolved to empty", field)
		}
		return s, nil
	}

	resolved := template
	for _, m := range streamNamePattern.FindAllStringSubmatch(template, -1) {
		field := m[1]
		v, ok := utils.GetField(rec, field)
		if !ok {
			return "", fmt.Errorf("stream name field %q not found in record", field)
		}
		s, _ := convert.ToString(v)
		resolved = strings.Replace(resolved, m[0], s, 1)
	}
	if strings.TrimSpace(resolved) == "" {
		return "", fmt.Errorf("stream name template %q resolved to empty", template)
	}
	return resolved, nil
}
