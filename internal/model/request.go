package model

type CreateChatRequest struct {
	Text string `json:"text"`
	Img  string `json:"img"`
}

// AppendTurnsRequest appends an optional user turn and a model turn to a chat.
type AppendTurnsRequest struct {
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer"`
	Img       string `json:"img,omitempty"`
	AIImg     string `json:"ai_img,omitempty"`
	ModelUsed Mode   `json:"model_used,omitempty"`
}

// HistoryEntry is the reduced {role, text} form of a turn sent to the text model.
type HistoryEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// InlineImage is an uploaded image passed by value alongside a prompt.
type InlineImage struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type TextInput struct {
	Text  string       `json:"text"`
	Image *InlineImage `json:"image,omitempty"`
}

type GenerateTextRequest struct {
	History []HistoryEntry `json:"history"`
	TextInput
}

type GenerateImageRequest struct {
	Prompt        string  `json:"prompt" binding:"required"`
	GuidanceScale float64 `json:"guidance_scale"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
}

// Defaults fills the fixed generation parameters.
func (r *GenerateImageRequest) Defaults() {
	if r.GuidanceScale == 0 {
		r.GuidanceScale = 7.5
	}
	if r.Width == 0 {
		r.Width = 1024
	}
	if r.Height == 0 {
		r.Height = 1024
	}
}

// Reduce strips turns down to what the text model sees.
func Reduce(history []Turn) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(history))
	for _, t := range history {
		entries = append(entries, HistoryEntry{Role: t.Role, Text: t.Text})
	}
	return entries
}
