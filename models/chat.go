package models

// ConversationContext carries optional details about the caller's matter
type ConversationContext struct {
	CompanyName string   `json:"company_name,omitempty"`
	Founders    []string `json:"founders,omitempty"`
	MatterType  string   `json:"matter_type,omitempty"`
	State       string   `json:"state,omitempty"`
}

// Source is a cited passage attached to an answer
type Source struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	DocType   string  `json:"doc_type"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
	Relevance string  `json:"relevance"`
}

// ChatResponse is the terminal output of the answer generator
type ChatResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Sources     []Source `json:"sources"`
	Suggestions []string `json:"suggestions"`
	Error       *string  `json:"error,omitempty"`
	Strategy    string   `json:"strategy"`
}

// SuggestionCategory groups starter questions shown before a conversation begins
type SuggestionCategory struct {
	Category  string   `json:"category"`
	Questions []string `json:"questions"`
}
