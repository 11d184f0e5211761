package vision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quickvisa/intake-backend/pkg/passport"
)

var (
	zeroWidth = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
	fenced    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// ParseContent turns the model's reply into raw fields. It accepts bare JSON,
// JSON inside a fenced code block, or JSON surrounded by prose.
func ParseContent(content string) (passport.Raw, error) {
	cleaned := strings.TrimSpace(zeroWidth.Replace(content))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrExtractionFailed)
	}

	candidates := []string{cleaned}
	if m := fenced.FindStringSubmatch(cleaned); len(m) == 2 {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		candidates = append(candidates, cleaned[start:end+1])
	}

	for _, candidate := range candidates {
		var raw passport.Raw
		if err := json.Unmarshal([]byte(candidate), &raw); err == nil && raw != nil {
			return raw, nil
		}
	}

	return nil, fmt.Errorf("%w: response is not a JSON object", ErrExtractionFailed)
}
