package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openmedi/medirec/pkg/errors"
)

// Feature keys the tagger can ask about.  The terminal pipeline filters key
// off these.
const (
	FeatureAllergen           = "allergen"
	FeatureVaccine            = "vaccine"
	FeatureRadioisotope       = "radioisotope"
	FeatureNoTherapeuticValue = "no_therapeutic_value"
	FeatureCombination        = "combination_therapy"
)

// DefaultFeatures is the feature set the reconciliation pipeline tags with.
var DefaultFeatures = []string{
	FeatureAllergen,
	FeatureVaccine,
	FeatureRadioisotope,
	FeatureNoTherapeuticValue,
	FeatureCombination,
}

const tagPromptTemplate = `You are a pharmaceutical data curator. For the drug below, answer each
question with true or false. Reply with a single JSON object whose keys are
exactly %s and whose values are JSON booleans. Reply with the JSON object
only.

Drug: %s`

// Tagger asks the chat model for coarse boolean features of a drug label.
type Tagger struct {
	model ChatModel
}

// NewTagger builds a tagger over the given model.
func NewTagger(model ChatModel) *Tagger {
	return &Tagger{model: model}
}

// Tag returns "true"/"false" per requested feature.  A reply that is not a
// JSON object, or that omits a feature, yields a null for the affected
// fields plus one ErrCodeTagMalformed error each; tagging never aborts the
// batch over one bad reply.
func (t *Tagger) Tag(ctx context.Context, label string, features []string) (map[string]string, []error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, []error{errors.InvalidInput("drug label is blank")}
	}
	if len(features) == 0 {
		features = DefaultFeatures
	}

	quoted := make([]string, len(features))
	for i, f := range features {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	reply, err := t.model.Complete(ctx, fmt.Sprintf(tagPromptTemplate, strings.Join(quoted, ", "), label))
	if err != nil {
		errs := make([]error, 0, len(features))
		for _, f := range features {
			errs = append(errs, errors.Wrap(err, errors.ErrCodeTagMalformed, fmt.Sprintf("feature %q of %q unavailable", f, label)))
		}
		return map[string]string{}, errs
	}

	parsed := map[string]interface{}{}
	decodeErr := json.Unmarshal([]byte(extractJSONObject(reply)), &parsed)

	tags := make(map[string]string, len(features))
	var errs []error
	for _, f := range features {
		if decodeErr != nil {
			errs = append(errs, errors.Newf(errors.ErrCodeTagMalformed, "reply for %q is not a JSON object", label))
			continue
		}
		v, ok := parsed[f]
		b, isBool := v.(bool)
		if !ok || !isBool {
			errs = append(errs, errors.Newf(errors.ErrCodeTagMalformed, "feature %q missing from reply for %q", f, label))
			continue
		}
		if b {
			tags[f] = "true"
		} else {
			tags[f] = "false"
		}
	}
	return tags, errs
}

// extractJSONObject isolates the outermost {...} span of a reply, tolerating
// models that wrap the object in prose or code fences.
func extractJSONObject(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return reply
	}
	return reply[start : end+1]
}
