package imagegen

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Request describes one text-to-image call. Count is already clamped by the caller.
type Request struct {
	Prompt       string
	Style        string
	Colors       []string
	ReferenceURL string
	Count        int
}

// Synthesizer produces Count image URLs for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]string, error)
}

// Operation names a follow-on image transform.
type Operation string

const (
	OpUpscale          Operation = "upscale-2x"
	OpRemoveBackground Operation = "remove-bg"
)

// Transformer derives a new image URL from an existing one.
type Transformer interface {
	Transform(ctx context.Context, sourceURL string, op Operation) (string, error)
}

var stubPool = []string{
	"https://cdn.designforge.app/samples/tiger.png",
	"https://cdn.designforge.app/samples/wave.png",
	"https://cdn.designforge.app/samples/skull.png",
	"https://cdn.designforge.app/samples/sunset.png",
	"https://cdn.designforge.app/samples/koi.png",
	"https://cdn.designforge.app/samples/mountain.png",
	"https://cdn.designforge.app/samples/rose.png",
	"https://cdn.designforge.app/samples/robot.png",
}

// Stub returns deterministic sample URLs: the same request always maps to the same images.
type Stub struct{}

func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) Synthesize(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(req.Style))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Colors, ",")))
	h.Write([]byte{0})
	h.Write([]byte(req.ReferenceURL))
	seed := h.Sum64()

	urls := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		base := stubPool[(seed+uint64(i))%uint64(len(stubPool))]
		urls = append(urls, fmt.Sprintf("%s?seed=%x&v=%d", base, seed, i+1))
	}
	return urls, nil
}

// URLTransformer marks the source URL with the operation and a cache-busting
// token. It stands in for a real upscaler or matting service.
type URLTransformer struct{}

func NewURLTransformer() *URLTransformer {
	return &URLTransformer{}
}

func (t *URLTransformer) Transform(ctx context.Context, sourceURL string, op Operation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return withMarker(sourceURL, op, token), nil
}

func withMarker(sourceURL string, op Operation, token string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Scheme == "" {
		sep := "?"
		if strings.Contains(sourceURL, "?") {
			sep = "&"
		}
		return sourceURL + sep + "fx=" + string(op) + "&v=" + token
	}
	q := parsed.Query()
	q.Set("fx", string(op))
	q.Set("v", token)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
