package models

// Word is a dictionary entry: a Ukrainian prompt with its English
// translation and a difficulty level.
type Word struct {
	ID    string `json:"id"`
	UA    string `json:"ua"`
	EN    string `json:"en"`
	Level string `json:"level,omitempty"`
}
