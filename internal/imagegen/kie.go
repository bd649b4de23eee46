package imagegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/designforge/internal/kie"
)

// KIEClient is the subset of the KIE client the adapter needs.
type KIEClient interface {
	Generate(ctx context.Context, opts kie.GenerateOptions) (*kie.Image, error)
}

// KIE synthesizes images through the KIE task API, one task per variation.
type KIE struct {
	client KIEClient
	model  string
}

func NewKIE(client KIEClient, model string) *KIE {
	return &KIE{client: client, model: model}
}

func (k *KIE) Synthesize(ctx context.Context, req Request) ([]string, error) {
	opts := kie.GenerateOptions{
		Model:       k.model,
		Prompt:      composePrompt(req),
		AspectRatio: "1:1",
		Resolution:  "1K",
	}
	if req.ReferenceURL != "" {
		opts.InputURLs = []string{req.ReferenceURL}
	}

	urls := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		img, err := k.client.Generate(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("generate variation %d: %w", i+1, err)
		}
		urls = append(urls, img.URL)
	}
	return urls, nil
}

func composePrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.Style != "" {
		fmt.Fprintf(&b, ". Style: %s", strings.ToLower(strings.ReplaceAll(req.Style, "_", " ")))
	}
	if len(req.Colors) > 0 {
		fmt.Fprintf(&b, ". Color palette: %s", strings.Join(req.Colors, ", "))
	}
	b.WriteString(". Print-ready apparel graphic on a plain background.")
	return b.String()
}
