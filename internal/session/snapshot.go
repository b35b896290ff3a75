package session

import "memit/internal/models"

// Snapshot is one query session: the text, every response received for it
// and what is currently on screen. Values stored in History are never mutated.
type Snapshot struct {
	Text            string                 `json:"text"`
	Responses       []models.ResponseEntry `json:"responses"`
	ActiveIndex     int                    `json:"activeResponseIndex"`
	Displayed       *models.Explanation    `json:"result,omitempty"`
	Error           string                 `json:"error"`
	IsProviderError bool                   `json:"isProviderError"`
	IsSaved         bool                   `json:"isSaved"`
	SaveError       string                 `json:"saveError"`
}

func emptySnapshot(text string) Snapshot {
	return Snapshot{Text: text, ActiveIndex: -1}
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Displayed = s.Displayed.Clone()
	if s.Responses != nil {
		out.Responses = make([]models.ResponseEntry, len(s.Responses))
		for i, r := range s.Responses {
			out.Responses[i] = r.Clone()
		}
	}
	return out
}

// IsEmpty reports whether nothing was ever asked in this session.
func (s Snapshot) IsEmpty() bool {
	return s.Text == "" && len(s.Responses) == 0 && s.Error == ""
}

// ActiveEntry returns the entry at ActiveIndex.
func (s Snapshot) ActiveEntry() (models.ResponseEntry, bool) {
	if s.ActiveIndex < 0 || s.ActiveIndex >= len(s.Responses) {
		return models.ResponseEntry{}, false
	}
	return s.Responses[s.ActiveIndex], true
}

// upsert replaces the entry for the same model in place, or appends.
func (s *Snapshot) upsert(entry models.ResponseEntry) int {
	for i := range s.Responses {
		if s.Responses[i].Model == entry.Model {
			s.Responses[i] = entry
			return i
		}
	}
	s.Responses = append(s.Responses, entry)
	return len(s.Responses) - 1
}

// fastestSuccess returns the successful entry with the lowest response time.
// Ties keep the earlier entry.
func (s Snapshot) fastestSuccess() (models.ResponseEntry, bool) {
	var best models.ResponseEntry
	found := false
	for _, r := range s.Responses {
		if !r.Succeeded() {
			continue
		}
		if !found || r.ResponseTimeMs < best.ResponseTimeMs {
			best, found = r, true
		}
	}
	return best, found
}

func (s Snapshot) successCount() int {
	n := 0
	for _, r := range s.Responses {
		if r.Succeeded() {
			n++
		}
	}
	return n
}
