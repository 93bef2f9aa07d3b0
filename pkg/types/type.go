package types

// ToolLog carries one tool log line pushed to connected web clients.
type ToolLog struct {
	ToolName  string `json:"toolName"`
	Message   string `json:"message"`
	Type      string `json:"type"` // "info", "success", "error"
	Timestamp string `json:"timestamp"`
}

// Character describes one playable MC in the battle roster.
type Character struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	StyleID        string  `json:"style_id"`
	VoicePreset    string  `json:"voice_preset"`
	Temperature    float64 `json:"temperature"`
	PortraitPrompt string  `json:"portrait_prompt"`
}

// DefaultCharacters returns the built-in roster. Style ids map to the
// animator's style motion presets, voice presets to the speech engine.
func DefaultCharacters() []Character {
	return []Character{
		{
			ID:          "MC_Razor",
			Name:        "MC Razor",
			StyleID:     "style_01",
			VoicePreset: "v2/en_speaker_9",
			Temperature: 0.7,
			PortraitPrompt: "Photorealistic portrait of a fierce female rap battle artist, MC Razor. " +
				"Professional studio lighting, sharp focus, high detail. " +
				"Age 22-28, sharp cheekbones, intense defiant eyes, braided hair with shaved sides. " +
				"Wearing modern streetwear - leather jacket, silver chains, urban style. " +
				"Aggressive, confident expression showing razor-sharp lyrical skill. " +
				"Background should be dark/neutral to focus on the face. " +
				"Style: Professional headshot, cinematic lighting, 4K quality.",
		},
		{
			ID:          "MC_Venom",
			Name:        "MC Venom",
			StyleID:     "style_02",
			VoicePreset: "v2/en_speaker_6",
			Temperature: 0.7,
			PortraitPrompt: "Photorealistic portrait of an intense male rap battle artist, MC Venom. " +
				"Professional studio lighting, sharp focus, high detail. " +
				"Age 28-35, heavy brow, piercing stare, short dark hair, faint scar on one cheek. " +
				"Wearing modern streetwear - dark hoodie, snake pendant, urban style. " +
				"Menacing, focused expression showing venomous delivery. " +
				"Background should be dark/neutral to focus on the face. " +
				"Style: Professional headshot, cinematic lighting, 4K quality.",
		},
		{
			ID:          "MC_Silk",
			Name:        "MC Silk",
			StyleID:     "style_03",
			VoicePreset: "v2/en_speaker_3",
			Temperature: 0.7,
			PortraitPrompt: "Photorealistic portrait of a confident black male rap battle artist, MC Silk. " +
				"Professional studio lighting, sharp focus, high detail. " +
				"Age 25-30, strong jawline, intense focused eyes, short styled hair or fade cut. " +
				"Wearing modern streetwear - gold chain, fitted cap or beanie, urban style. " +
				"Confident, smooth expression showing intelligence and lyrical skill. " +
				"Background should be dark/neutral to focus on the face. " +
				"Style: Professional headshot, cinematic lighting, 4K quality.",
		},
	}
}

// CharacterByID looks up a roster entry.
func CharacterByID(id string) (Character, bool) {
	for _, c := range DefaultCharacters() {
		if c.ID == id {
			return c, true
		}
	}
	return Character{}, false
}

// StyleFor returns the animator style preset for a character, defaulting
// to style_01 for unknown ids.
func StyleFor(characterID string) string {
	if c, ok := CharacterByID(characterID); ok {
		return c.StyleID
	}
	return "style_01"
}
