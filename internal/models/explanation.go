package models

import (
	"errors"
	"strings"
	"time"
)

// Explanation is the dictionary-style record every provider returns.
type Explanation struct {
	Word                string   `json:"word"`
	IPAPronunciation    string   `json:"ipa_pronunciation,omitempty"`
	PartOfSpeech        string   `json:"part_of_speech,omitempty"`
	SimpleDefinition    string   `json:"simple_definition"`
	DetailedExplanation string   `json:"detailed_explanation"`
	InChinese           string   `json:"in_chinese"`
	Etymology           string   `json:"etymology,omitempty"`
	Examples            []string `json:"examples"`
	Synonyms            []string `json:"synonyms"`
	Antonyms            []string `json:"antonyms"`
	ContextUsage        string   `json:"context_usage,omitempty"`
}

// Validate reports the first required field a provider left empty.
func (e *Explanation) Validate() error {
	if e == nil {
		return errors.New("explanation is required")
	}
	switch {
	case strings.TrimSpace(e.Word) == "":
		return errors.New("word is required")
	case strings.TrimSpace(e.SimpleDefinition) == "":
		return errors.New("simple_definition is required")
	case strings.TrimSpace(e.DetailedExplanation) == "":
		return errors.New("detailed_explanation is required")
	case strings.TrimSpace(e.InChinese) == "":
		return errors.New("in_chinese is required")
	}
	return nil
}

// Clone returns a deep copy; slices are never shared with the receiver.
func (e *Explanation) Clone() *Explanation {
	if e == nil {
		return nil
	}
	out := *e
	out.Examples = cloneStrings(e.Examples)
	out.Synonyms = cloneStrings(e.Synonyms)
	out.Antonyms = cloneStrings(e.Antonyms)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "success"
	ResponseError   ResponseStatus = "error"
)

// ResponseEntry is the outcome of one provider+model attempt within a query session.
type ResponseEntry struct {
	Model          ModelRef       `json:"modelId"`
	Status         ResponseStatus `json:"status"`
	Result         *Explanation   `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	ResponseTimeMs int64          `json:"responseTimeMs"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

func (r ResponseEntry) Succeeded() bool {
	return r.Status == ResponseSuccess
}

// Clone deep-copies the entry including its result.
func (r ResponseEntry) Clone() ResponseEntry {
	r.Result = r.Result.Clone()
	return r
}
