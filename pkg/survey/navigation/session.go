package navigation

import (
	"encoding/json"

	"github.com/formwalk/formwalk/pkg/errors"
)

// Session is the serializable respondent state: collected answers, the
// page the respondent is on, and the navigation history log. It is the
// unit of save/resume; the wire shape is stable JSON.
type Session struct {
	Answers           map[string]interface{} `json:"answers"`
	CurrentPageIndex  int                    `json:"current_page_index"`
	NavigationHistory []Entry                `json:"navigation_history,omitempty"`
}

// NewSession creates an empty session positioned at the first page.
func NewSession() *Session {
	return &Session{Answers: map[string]interface{}{}}
}

// Encode serializes the session to JSON.
func (s *Session) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encoding session")
	}
	return data, nil
}

// DecodeSession deserializes a session, normalizing a missing answers map
// so callers can always index into it.
func DecodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	if s.Answers == nil {
		s.Answers = map[string]interface{}{}
	}
	return &s, nil
}
