package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	refUsePattern = regexp.MustCompile(`!\[([^\]]*)\]\[image-(\d+)\]`)
	refDefPattern = regexp.MustCompile(`(?m)^\[image-(\d+)\]: attachment:\d+/(.*)$\n?`)
)

func imageRef(alt string, index int) string {
	return fmt.Sprintf("![%s][image-%d]", alt, index)
}

func refDefinition(index int, name string) string {
	return fmt.Sprintf("[image-%d]: attachment:%d/%s", index, index, name)
}

// Reindex rewrites the attachment references of md after attachments were
// dropped or moved. keep maps an old index to its new one. A reference to
// an index absent from keep is replaced by omitted[index], or by its alt
// text, and its definition is removed.
func Reindex(md string, keep map[int]int, omitted map[int]string) string {
	md = refUsePattern.ReplaceAllStringFunc(md, func(s string) string {
		m := refUsePattern.FindStringSubmatch(s)
		old, err := strconv.Atoi(m[2])
		if err != nil {
			return s
		}
		if idx, ok := keep[old]; ok {
			return imageRef(m[1], idx)
		}
		if text, ok := omitted[old]; ok {
			return text
		}
		return m[1]
	})
	md = refDefPattern.ReplaceAllStringFunc(md, func(s string) string {
		m := refDefPattern.FindStringSubmatch(s)
		old, err := strconv.Atoi(m[1])
		if err != nil {
			return s
		}
		if idx, ok := keep[old]; ok {
			def := refDefinition(idx, m[2])
			if strings.HasSuffix(s, "\n") {
				def += "\n"
			}
			return def
		}
		return ""
	})
	return blankRun.ReplaceAllString(strings.TrimSpace(md), "\n\n")
}
