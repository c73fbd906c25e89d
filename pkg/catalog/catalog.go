package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/menta2k/edge-case-lab/pkg/types"
)

// Catalog is the read-only set of subjects and parameter presets
type Catalog struct {
	Images       []types.PresetImage      `json:"images"`
	EdgeCases    []types.EdgeCaseExample  `json:"edgeCases"`
	Difficulties []types.DifficultyPreset `json:"difficulties"`
	Scenarios    []types.FieldScenario    `json:"scenarios"`
}

// Difficulty labels
const (
	Easy   = "Easy"
	Medium = "Medium"
	Hard   = "Hard"
)

// Default returns the built-in catalog
func Default() *Catalog {
	return &Catalog{
		Images: []types.PresetImage{
			{ID: "cat", URL: "https://images.unsplash.com/photo-1514888286974-6c03e2ca1dba?w=500&h=500&fit=crop", Label: "Cat"},
			{ID: "banana", URL: "https://images.unsplash.com/photo-1571771894821-ad990241274d?w=500&h=500&fit=crop", Label: "Banana"},
			{ID: "bicycle", URL: "https://images.unsplash.com/photo-1485965120184-e220f721d03e?w=500&h=500&fit=crop", Label: "Bicycle"},
			{ID: "teapot", URL: "https://images.unsplash.com/photo-1576091160550-2173bdd99625?w=500&h=500&fit=crop", Label: "Teapot"},
			{ID: "plant", URL: "https://images.unsplash.com/photo-1485955900006-10f4d324d411?w=500&h=500&fit=crop", Label: "Potted Plant"},
		},
		EdgeCases: []types.EdgeCaseExample{
			{PresetImage: types.PresetImage{ID: "shadows", URL: "https://images.unsplash.com/photo-1516222338250-863216ce019b?w=300&h=300&fit=crop", Label: "Harsh Shadows"}, Description: "Dark patches hide shape"},
			{PresetImage: types.PresetImage{ID: "blur", URL: "https://images.unsplash.com/photo-1502134249126-9f3755a50d78?w=300&h=300&fit=crop", Label: "Motion Blur"}, Description: "Fast movement smudges edges"},
			{PresetImage: types.PresetImage{ID: "angle", URL: "https://images.unsplash.com/photo-1471180625745-944903837c22?w=300&h=300&fit=crop", Label: "Bird's Eye"}, Description: "Top-down perspective change"},
			{PresetImage: types.PresetImage{ID: "noise", URL: "https://images.unsplash.com/photo-1550684848-fac1c5b4e853?w=300&h=300&fit=crop", Label: "Digital Grain"}, Description: "Low light sensor static"},
		},
		Difficulties: []types.DifficultyPreset{
			{
				Label:       Easy,
				Config:      types.Params{Blur: 2, Brightness: 115, Noise: 5, Rotation: 5, Crop: 10},
				Description: "Just a tiny smudge on the lens.",
			},
			{
				Label:       Medium,
				Config:      types.Params{Blur: 6, Brightness: 140, Noise: 30, Rotation: 35, Crop: 25},
				Description: "A shaky, noisy photo in bright light.",
			},
			{
				Label:       Hard,
				Config:      types.Params{Blur: 12, Brightness: 180, Noise: 70, Rotation: 160, Crop: 55},
				Description: "Total chaos! Almost unrecognizable.",
			},
		},
		Scenarios: []types.FieldScenario{
			{
				ID:          "dashcam",
				Label:       "Self-Driving Car",
				Description: "Speed blur and a tilted mount.",
				Config:      types.Params{Blur: 5, Brightness: 100, Noise: 10, Rotation: -12, Crop: 15},
			},
			{
				ID:          "night",
				Label:       "Night Vision",
				Description: "Almost no light and heavy sensor static.",
				Config:      types.Params{Blur: 1, Brightness: 35, Noise: 55, Rotation: 0, Crop: 0},
			},
			{
				ID:          "security",
				Label:       "Security Camera",
				Description: "Zoomed-in footage from a ceiling corner.",
				Config:      types.Params{Blur: 3, Brightness: 90, Noise: 25, Rotation: 25, Crop: 60},
			},
			{
				ID:          "fog",
				Label:       "Foggy Morning",
				Description: "Washed-out light that melts edges.",
				Config:      types.Params{Blur: 9, Brightness: 160, Noise: 5, Rotation: 0, Crop: 0},
			},
		},
	}
}

// LoadFromFile loads a catalog from a JSON file and validates it
func LoadFromFile(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every stored vector is in range and every id is unique
func (c *Catalog) Validate() error {
	if len(c.Images) == 0 {
		return fmt.Errorf("catalog: no images")
	}

	subjects := map[string]struct{}{}
	addSubject := func(img types.PresetImage) error {
		if img.ID == "" || img.URL == "" || img.Label == "" {
			return fmt.Errorf("catalog: image %q is missing id, url or label", img.ID)
		}
		if _, dup := subjects[img.ID]; dup {
			return fmt.Errorf("catalog: duplicate image id %q", img.ID)
		}
		subjects[img.ID] = struct{}{}
		return nil
	}
	for _, img := range c.Images {
		if err := addSubject(img); err != nil {
			return err
		}
	}
	for _, ex := range c.EdgeCases {
		if err := addSubject(ex.PresetImage); err != nil {
			return err
		}
	}

	// Preset labels and scenario ids share one state namespace with Manual
	states := map[string]struct{}{"Manual": {}}
	for _, d := range c.Difficulties {
		if _, dup := states[d.Label]; dup || d.Label == "" {
			return fmt.Errorf("catalog: invalid or duplicate difficulty %q", d.Label)
		}
		if err := d.Config.Validate(); err != nil {
			return fmt.Errorf("catalog: difficulty %q: %w", d.Label, err)
		}
		states[d.Label] = struct{}{}
	}
	for _, s := range c.Scenarios {
		if _, dup := states[s.ID]; dup || s.ID == "" {
			return fmt.Errorf("catalog: invalid or duplicate scenario %q", s.ID)
		}
		if err := s.Config.Validate(); err != nil {
			return fmt.Errorf("catalog: scenario %q: %w", s.ID, err)
		}
		states[s.ID] = struct{}{}
	}

	return nil
}

// Difficulty looks up a preset by label
func (c *Catalog) Difficulty(label string) (types.DifficultyPreset, bool) {
	for _, d := range c.Difficulties {
		if d.Label == label {
			return d, true
		}
	}
	return types.DifficultyPreset{}, false
}

// Scenario looks up a field scenario by id
func (c *Catalog) Scenario(id string) (types.FieldScenario, bool) {
	for _, s := range c.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return types.FieldScenario{}, false
}

// Subject looks up a preset image or edge-case example by id
func (c *Catalog) Subject(id string) (types.PresetImage, bool) {
	for _, img := range c.Images {
		if img.ID == id {
			return img, true
		}
	}
	for _, ex := range c.EdgeCases {
		if ex.ID == id {
			return ex.PresetImage, true
		}
	}
	return types.PresetImage{}, false
}

// DefaultSubject is the subject selected when a session starts
func (c *Catalog) DefaultSubject() types.PresetImage {
	return c.Images[0]
}
