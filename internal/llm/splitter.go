package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmedi/medirec/pkg/errors"
)

const splitPromptTemplate = `You are a pharmaceutical data curator. The following product is a
combination therapy. List its individual active ingredients, one per item,
separated by semicolons. Reply with the ingredient list only, no
explanation.

Product: %s`

// Splitter asks the chat model to decompose a combination product into its
// constituent active ingredients.
type Splitter struct {
	model ChatModel
}

// NewSplitter builds a splitter over the given model.
func NewSplitter(model ChatModel) *Splitter {
	return &Splitter{model: model}
}

// Split returns the ingredient names of a combination product in the order
// the model lists them.  An empty or unusable reply is ErrCodeSplitFailed;
// the caller decides whether that aborts the row or the batch.
func (s *Splitter) Split(ctx context.Context, productName string) ([]string, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, errors.InvalidInput("product name is blank")
	}

	reply, err := s.model.Complete(ctx, fmt.Sprintf(splitPromptTemplate, productName))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSplitFailed, fmt.Sprintf("split of %q failed", productName))
	}

	names := parseIngredientList(reply)
	if len(names) == 0 {
		return nil, errors.Newf(errors.ErrCodeSplitFailed, "no ingredients parsed from reply for %q", productName)
	}
	return names, nil
}

// parseIngredientList extracts ingredient names from a free-text reply.
// Semicolons are the requested separator; newlines are accepted because
// models sometimes answer as a bulleted list anyway.
func parseIngredientList(reply string) []string {
	reply = strings.NewReplacer("\n", ";", "•", "", "*", "").Replace(reply)
	var names []string
	for _, part := range strings.Split(reply, ";") {
		part = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(part), "-0123456789. "))
		if part == "" {
			continue
		}
		names = append(names, part)
	}
	return names
}
