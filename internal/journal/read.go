package journal

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Summary describes a journal.
type Summary struct {
	Document string
	Version  int
	Steps    int
	Entries  int
	Labels   []string

	// Ops counts redo operations by name.
	Ops map[string]int
}

func parse(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: not JSON", ErrInvalidJournal)
	}
	doc := gjson.ParseBytes(data)
	if !doc.Get("version").Exists() || !doc.Get("steps").IsArray() {
		return gjson.Result{}, fmt.Errorf("%w: missing version or steps", ErrInvalidJournal)
	}
	return doc, nil
}

// Summarize reads a journal produced by Export.
func Summarize(data []byte) (Summary, error) {
	doc, err := parse(data)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Document: doc.Get("document").String(),
		Version:  int(doc.Get("version").Int()),
		Steps:    int(doc.Get("steps.#").Int()),
		Ops:      make(map[string]int),
	}
	for _, label := range doc.Get("steps.#.label").Array() {
		s.Labels = append(s.Labels, label.String())
	}
	doc.Get("steps.#.entries").ForEach(func(_, entries gjson.Result) bool {
		entries.ForEach(func(_, entry gjson.Result) bool {
			s.Entries++
			s.Ops[entry.Get("redo.op").String()]++
			return true
		})
		return true
	})
	return s, nil
}

// Labels returns the step labels of a journal, oldest first.
func Labels(data []byte) ([]string, error) {
	s, err := Summarize(data)
	if err != nil {
		return nil, err
	}
	return s.Labels, nil
}

// Step returns the raw JSON of the step with the given ID.
func Step(data []byte, id string) (gjson.Result, bool) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}
	r := gjson.GetBytes(data, fmt.Sprintf(`steps.#(id==%q)`, id))
	return r, r.Exists()
}
