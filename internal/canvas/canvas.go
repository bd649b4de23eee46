// Package canvas parses and repairs the layered mockup editor document.
//
// Stored documents come from browsers and older clients, so Parse never fails:
// malformed layers are dropped, numbers are clamped into range and a missing
// design layer is rebuilt from the owning design's image.
package canvas

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PlaceholderPreviewURL is shown when a mockup has no visible design image.
const PlaceholderPreviewURL = "https://cdn.designforge.app/mockups/placeholder.png"

// MaxLayers is the layer cap applied when a document is saved.
const MaxLayers = 8

type GarmentType string

const (
	GarmentTShirt     GarmentType = "tshirt"
	GarmentHoodie     GarmentType = "hoodie"
	GarmentSweatshirt GarmentType = "sweatshirt"
	GarmentTankTop    GarmentType = "tank_top"
	GarmentLongSleeve GarmentType = "long_sleeve"
)

var garmentTypes = map[GarmentType]bool{
	GarmentTShirt: true, GarmentHoodie: true, GarmentSweatshirt: true,
	GarmentTankTop: true, GarmentLongSleeve: true,
}

type LayerType string

const (
	LayerDesign LayerType = "design"
	LayerText   LayerType = "text"
)

const (
	defaultGarmentColor = "#ffffff"
	defaultTextColor    = "#111111"
	defaultFontFamily   = "Inter"
	defaultFontSize     = 32
)

// Layer is one element on the garment. ImageURL is set for design layers;
// Text, FontFamily, FontSize and Color are set for text layers.
type Layer struct {
	ID       string    `json:"id"`
	Type     LayerType `json:"type"`
	Name     string    `json:"name"`
	Visible  bool      `json:"visible"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Scale    float64   `json:"scale"`
	Rotation float64   `json:"rotation"`

	ImageURL string `json:"imageUrl,omitempty"`

	Text       string  `json:"text,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Color      string  `json:"color,omitempty"`
}

type State struct {
	GarmentType   GarmentType `json:"garmentType"`
	GarmentColor  string      `json:"garmentColor"`
	ProductAngle  float64     `json:"productAngle"`
	ActiveLayerID string      `json:"activeLayerId"`
	Layers        []Layer     `json:"layers"`
}

// Options controls normalization.
type Options struct {
	// FallbackImageURL seeds a design layer when none survives.
	FallbackImageURL string
	// MaxLayers caps the layer count. Zero means no cap.
	MaxLayers int
}

// Parse decodes raw into a valid State. Any input, including invalid JSON, yields a usable document.
func Parse(raw []byte, opts Options) State {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		doc = map[string]any{}
	}

	state := State{
		GarmentType:   GarmentType(stringField(doc, "garmentType")),
		GarmentColor:  stringField(doc, "garmentColor"),
		ProductAngle:  number(doc["productAngle"], 0),
		ActiveLayerID: stringField(doc, "activeLayerId"),
	}
	if rawLayers, ok := doc["layers"].([]any); ok {
		for _, item := range rawLayers {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if layer, ok := layerFrom(obj); ok {
				state.Layers = append(state.Layers, layer)
			}
		}
	}
	return Normalize(state, opts)
}

// Normalize repairs an already typed State using the same rules as Parse.
func Normalize(state State, opts Options) State {
	out := State{
		GarmentType:   state.GarmentType,
		GarmentColor:  state.GarmentColor,
		ProductAngle:  clamp(finite(state.ProductAngle, 0), 0, 360),
		ActiveLayerID: strings.TrimSpace(state.ActiveLayerID),
	}
	if !garmentTypes[GarmentType(strings.ToLower(string(out.GarmentType)))] {
		out.GarmentType = GarmentTShirt
	} else {
		out.GarmentType = GarmentType(strings.ToLower(string(out.GarmentType)))
	}
	if hex, ok := NormalizeHex(out.GarmentColor); ok {
		out.GarmentColor = hex
	} else {
		out.GarmentColor = defaultGarmentColor
	}

	layers := make([]Layer, 0, len(state.Layers)+1)
	for _, l := range state.Layers {
		if l, ok := normalizeLayer(l); ok {
			layers = append(layers, l)
		}
	}
	if opts.MaxLayers > 0 && len(layers) > opts.MaxLayers {
		layers = layers[:opts.MaxLayers]
	}

	if !hasLayer(layers, LayerDesign) && strings.TrimSpace(opts.FallbackImageURL) != "" {
		seed := Layer{
			Type:     LayerDesign,
			Name:     "Design",
			Visible:  true,
			X:        50,
			Y:        50,
			Scale:    1,
			ImageURL: strings.TrimSpace(opts.FallbackImageURL),
		}
		layers = append([]Layer{seed}, layers...)
		if opts.MaxLayers > 0 && len(layers) > opts.MaxLayers {
			layers = layers[:opts.MaxLayers]
		}
	}
	ensureVisibleDesign(layers)
	assignIDs(layers)

	out.Layers = layers
	if !containsID(layers, out.ActiveLayerID) {
		out.ActiveLayerID = ""
		if len(layers) > 0 {
			out.ActiveLayerID = layers[0].ID
		}
	}
	return out
}

// PreviewURL picks the first visible design image, then the previously stored
// preview, then the placeholder.
func PreviewURL(state State, previous string) string {
	for _, l := range state.Layers {
		if l.Type == LayerDesign && l.Visible && l.ImageURL != "" {
			return l.ImageURL
		}
	}
	if strings.TrimSpace(previous) != "" {
		return previous
	}
	return PlaceholderPreviewURL
}

// Marshal encodes the state for storage.
func Marshal(state State) (string, error) {
	if state.Layers == nil {
		state.Layers = []Layer{}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal canvas state: %w", err)
	}
	return string(b), nil
}

// NormalizeHex accepts #rgb or #rrggbb, with or without the leading #, and
// returns the lowercase form with #.
func NormalizeHex(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "#")
	if len(s) != 3 && len(s) != 6 {
		return "", false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", false
		}
	}
	return "#" + s, true
}

func layerFrom(obj map[string]any) (Layer, bool) {
	layer := Layer{
		ID:       stringField(obj, "id"),
		Type:     LayerType(strings.ToLower(stringField(obj, "type"))),
		Name:     stringField(obj, "name"),
		Visible:  boolean(obj["visible"], true),
		X:        number(obj["x"], 50),
		Y:        number(obj["y"], 50),
		Scale:    number(obj["scale"], 1),
		Rotation: number(obj["rotation"], 0),
	}
	switch layer.Type {
	case LayerDesign:
		layer.ImageURL = stringField(obj, "imageUrl")
	case LayerText:
		layer.Text = stringField(obj, "text")
		layer.FontFamily = stringField(obj, "fontFamily")
		layer.FontSize = number(obj["fontSize"], defaultFontSize)
		layer.Color = stringField(obj, "color")
	default:
		return Layer{}, false
	}
	return layer, true
}

func normalizeLayer(l Layer) (Layer, bool) {
	l.ID = strings.TrimSpace(l.ID)
	l.Name = strings.TrimSpace(l.Name)
	l.X = clamp(finite(l.X, 50), 0, 100)
	l.Y = clamp(finite(l.Y, 50), 0, 100)
	l.Scale = clamp(finite(l.Scale, 1), 0.2, 2.5)
	l.Rotation = clamp(finite(l.Rotation, 0), -180, 180)

	switch l.Type {
	case LayerDesign:
		l.ImageURL = strings.TrimSpace(l.ImageURL)
		if l.ImageURL == "" {
			return Layer{}, false
		}
		l.Text, l.FontFamily, l.FontSize, l.Color = "", "", 0, ""
		if l.Name == "" {
			l.Name = "Design"
		}
	case LayerText:
		l.Text = strings.TrimSpace(l.Text)
		if l.Text == "" {
			return Layer{}, false
		}
		l.ImageURL = ""
		if strings.TrimSpace(l.FontFamily) == "" {
			l.FontFamily = defaultFontFamily
		}
		l.FontSize = clamp(finite(l.FontSize, defaultFontSize), 8, 200)
		if hex, ok := NormalizeHex(l.Color); ok {
			l.Color = hex
		} else {
			l.Color = defaultTextColor
		}
		if l.Name == "" {
			l.Name = "Text"
		}
	default:
		return Layer{}, false
	}
	return l, true
}

func ensureVisibleDesign(layers []Layer) {
	first := -1
	for i, l := range layers {
		if l.Type != LayerDesign {
			continue
		}
		if l.Visible {
			return
		}
		if first < 0 {
			first = i
		}
	}
	if first >= 0 {
		layers[first].Visible = true
	}
}

// assignIDs fills blank ids and renames duplicates so every id is unique.
func assignIDs(layers []Layer) {
	seen := make(map[string]bool, len(layers))
	for i := range layers {
		id := layers[i].ID
		if id == "" || seen[id] {
			for n := i + 1; ; n++ {
				candidate := fmt.Sprintf("%s-%d", layers[i].Type, n)
				if !seen[candidate] && !idTakenLater(layers[i+1:], candidate) {
					id = candidate
					break
				}
			}
			layers[i].ID = id
		}
		seen[id] = true
	}
}

func idTakenLater(rest []Layer, id string) bool {
	for _, l := range rest {
		if l.ID == id {
			return true
		}
	}
	return false
}

func hasLayer(layers []Layer, t LayerType) bool {
	for _, l := range layers {
		if l.Type == t {
			return true
		}
	}
	return false
}

func containsID(layers []Layer, id string) bool {
	if id == "" {
		return false
	}
	for _, l := range layers {
		if l.ID == id {
			return true
		}
	}
	return false
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func number(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return finite(n, fallback)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fallback
		}
		return finite(f, fallback)
	default:
		return fallback
	}
}

func boolean(v any, fallback bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

func finite(f, fallback float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
