package result

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Stats are the run statistics reported in a stream-json result event.
type Stats struct {
	DurationMS    int64
	DurationAPIMS int64
	NumTurns      int
	CostUSD       float64
	IsError       bool
}

// Text returns the agent's final text from captured output. For stream-json
// output that is the last result event's text, else the concatenated
// assistant text blocks. Plain output is returned unchanged.
func Text(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !isEvent(line) {
			continue
		}
		if gjson.Get(line, "type").String() != "result" {
			continue
		}
		if r := gjson.Get(line, "result"); r.Exists() {
			return r.String()
		}
	}

	var texts []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !isEvent(line) || gjson.Get(line, "type").String() != "assistant" {
			continue
		}
		gjson.Get(line, "message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				texts = append(texts, block.Get("text").String())
			}
			return true
		})
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}

	return raw
}

// RunStats returns the statistics of the last result event, if any.
func RunStats(raw string) (Stats, bool) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !isEvent(line) {
			continue
		}
		ev := gjson.Parse(line)
		if ev.Get("type").String() != "result" {
			continue
		}
		return Stats{
			DurationMS:    ev.Get("duration_ms").Int(),
			DurationAPIMS: ev.Get("duration_api_ms").Int(),
			NumTurns:      int(ev.Get("num_turns").Int()),
			CostUSD:       ev.Get("total_cost_usd").Float(),
			IsError:       ev.Get("is_error").Bool(),
		}, true
	}
	return Stats{}, false
}

func isEvent(line string) bool {
	return strings.HasPrefix(line, "{") && gjson.Valid(line)
}
