package events

// GenerationPayload is published after a generation commits.
type GenerationPayload struct {
	UserID       string   `json:"user_id"`
	DesignID     string   `json:"design_id"`
	GenerationID string   `json:"generation_id"`
	Credits      int      `json:"credits"`
	Variations   []string `json:"variations"`
}

// DesignPayload is published after an image transform.
type DesignPayload struct {
	UserID   string `json:"user_id"`
	DesignID string `json:"design_id"`
	Action   string `json:"action"`
	ImageURL string `json:"image_url"`
	Version  int    `json:"version"`
}

type MockupPayload struct {
	UserID    string `json:"user_id"`
	MockupID  string `json:"mockup_id"`
	DesignID  string `json:"design_id"`
	ExportURL string `json:"export_url,omitempty"`
}

type StatusPayload struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type RefillPayload struct {
	Users int `json:"users"`
}
