package scene

// Scene captures a practice world and the persona who hosts it.
type Scene struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	PersonaName string   `json:"personaName" yaml:"personaName"`
	Role        string   `json:"role" yaml:"role"`
	Setting     string   `json:"setting" yaml:"setting"`
	Personality string   `json:"personality" yaml:"personality"`
	Focus       []string `json:"focus,omitempty" yaml:"focus"`
	Opening     string   `json:"opening" yaml:"opening"`
	Image       string   `json:"image,omitempty" yaml:"image"`
	Locked      bool     `json:"locked" yaml:"locked"`
}

// DefaultID is the scene a session opens when none is requested.
const DefaultID = "cafe"

// Seed provides the built-in worlds. Only the cafe is playable for now.
func Seed() []Scene {
	return []Scene{
		{
			ID:          "cafe",
			Title:       "Cafe",
			PersonaName: "Locus",
			Role:        "barista",
			Setting:     "a cafe",
			Personality: "warm, patient, and slightly playful. You occasionally use humor to make learning fun",
			Focus: []string{
				"ordering food",
				"pricing of items",
				"asking if they are enjoying their food",
				"paying for food",
			},
			Opening: "Open the conversation by welcoming the user and asking what they would like to order.",
			Image:   "cafe_img",
		},
		{
			ID:          "supermarket",
			Title:       "Supermarket",
			PersonaName: "Locus",
			Role:        "shop assistant",
			Setting:     "a supermarket",
			Personality: "friendly and helpful",
			Focus:       []string{"finding products", "quantities and weights", "checking out"},
			Opening:     "Open the conversation by greeting the user and asking what they are looking for.",
			Image:       "supermarket_img",
			Locked:      true,
		},
		{
			ID:          "train-station",
			Title:       "Train Station",
			PersonaName: "Locus",
			Role:        "ticket agent",
			Setting:     "a train station",
			Personality: "calm and precise",
			Focus:       []string{"buying tickets", "platforms and times", "delays"},
			Opening:     "Open the conversation by asking the user where they would like to travel.",
			Image:       "station_img",
			Locked:      true,
		},
		{
			ID:          "retail-store",
			Title:       "Retail Store",
			PersonaName: "Locus",
			Role:        "sales assistant",
			Setting:     "a clothing store",
			Personality: "upbeat and attentive",
			Focus:       []string{"sizes and colors", "trying things on", "returns"},
			Opening:     "Open the conversation by greeting the user and offering help.",
			Image:       "retail_img",
			Locked:      true,
		},
	}
}
