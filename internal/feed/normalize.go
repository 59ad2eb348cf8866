package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/models"
)

// flexInt decodes a JSON number or a numeric string such as "#1024".
type flexInt struct {
	value int64
	ok    bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	s = strings.TrimLeft(strings.TrimSpace(s), "#")
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.value, f.ok = n, true
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil && x == float64(int64(x)) {
		f.value, f.ok = int64(x), true
		return nil
	}
	return fmt.Errorf("not an integer: %s", data)
}

// RawRound is one upstream row before validation. Feeds name the round index either
// "session" or "index", and send dice either as an array or as d1..d3.
type RawRound struct {
	Session flexInt   `json:"session"`
	Index   flexInt   `json:"index"`
	Dice    []flexInt `json:"dice"`
	D1      flexInt   `json:"d1"`
	D2      flexInt   `json:"d2"`
	D3      flexInt   `json:"d3"`
	Total   flexInt   `json:"total"`
	Result  string    `json:"result"`
}

// decodeRows splits a response into per-row messages so one bad row does not poison
// the batch. Bare arrays and common envelopes are accepted.
func decodeRows(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if body[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decoding rows: %w", err)
		}
		return rows, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	for _, key := range []string{"data", "rounds", "list", "items", "result"} {
		if raw, ok := envelope[key]; ok {
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 && raw[0] == '[' {
				return decodeRows(raw)
			}
		}
	}
	return nil, fmt.Errorf("no row array in response")
}

// NormalizeReport describes what Normalize kept and dropped.
type NormalizeReport struct {
	Accepted   int     `json:"accepted"`
	Dropped    int     `json:"dropped"`
	Duplicates int     `json:"duplicates"`
	Errors     []error `json:"-"`
}

// Normalizer turns upstream rows into a validated, ordered history.
type Normalizer struct {
	validate *validator.Validate
}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

// Parse decodes a response body and normalizes its rows.
func (n *Normalizer) Parse(body []byte) (models.History, NormalizeReport, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, NormalizeReport{}, err
	}

	raws := make([]RawRound, 0, len(rows))
	var report NormalizeReport
	for i, row := range rows {
		var raw RawRound
		if err := json.Unmarshal(row, &raw); err != nil {
			report.Dropped++
			report.Errors = append(report.Errors, errs.NewDataError("row", int64(i), "undecodable row", fmt.Errorf("%w: %v", errs.ErrMalformedRound, err)))
			continue
		}
		raws = append(raws, raw)
	}

	h, r := n.Normalize(raws)
	r.Dropped += report.Dropped
	r.Errors = append(report.Errors, r.Errors...)
	return h, r, nil
}

// Normalize canonicalizes each row, drops malformed ones, sorts by index and keeps the
// last row seen for a repeated index.
func (n *Normalizer) Normalize(raws []RawRound) (models.History, NormalizeReport) {
	var report NormalizeReport
	byIndex := make(map[int64]models.Round, len(raws))

	for i, raw := range raws {
		r, err := n.toRound(raw)
		if err != nil {
			report.Dropped++
			report.Errors = append(report.Errors, errs.NewDataError("row", int64(i), "malformed round", err))
			continue
		}
		if _, seen := byIndex[r.Index]; seen {
			report.Duplicates++
		}
		byIndex[r.Index] = r
	}

	h := make(models.History, 0, len(byIndex))
	for _, r := range byIndex {
		h = append(h, r)
	}
	sort.Slice(h, func(i, j int) bool { return h[i].Index < h[j].Index })
	report.Accepted = len(h)

	return h, report
}

func (n *Normalizer) toRound(raw RawRound) (models.Round, error) {
	var r models.Round

	switch {
	case raw.Session.ok:
		r.Index = raw.Session.value
	case raw.Index.ok:
		r.Index = raw.Index.value
	default:
		return r, fmt.Errorf("%w: missing session/index", errs.ErrMalformedRound)
	}

	var dice []flexInt
	switch {
	case len(raw.Dice) > 0:
		dice = raw.Dice
	case raw.D1.ok || raw.D2.ok || raw.D3.ok:
		dice = []flexInt{raw.D1, raw.D2, raw.D3}
	}
	if len(dice) > 0 {
		if len(dice) != 3 {
			return r, fmt.Errorf("%w: want 3 dice, got %d", errs.ErrMalformedRound, len(dice))
		}
		sum := 0
		for _, d := range dice {
			if !d.ok {
				return r, fmt.Errorf("%w: incomplete dice", errs.ErrMalformedRound)
			}
			r.Dice = append(r.Dice, int(d.value))
			sum += int(d.value)
		}
		if raw.Total.ok && int(raw.Total.value) != sum {
			return r, fmt.Errorf("%w: total %d does not match dice sum %d", errs.ErrMalformedRound, raw.Total.value, sum)
		}
		r.Total = sum
	} else if raw.Total.ok {
		r.Total = int(raw.Total.value)
	} else {
		return r, fmt.Errorf("%w: missing total", errs.ErrMalformedRound)
	}

	r.Outcome = models.OutcomeFromTotal(r.Total)
	if raw.Result != "" {
		o, err := models.ParseOutcome(raw.Result)
		if err != nil {
			return r, fmt.Errorf("%w: %v", errs.ErrMalformedRound, err)
		}
		if o != r.Outcome {
			return r, fmt.Errorf("%w: result %s contradicts total %d", errs.ErrMalformedRound, raw.Result, r.Total)
		}
	}

	if err := n.validate.Struct(r); err != nil {
		return r, fmt.Errorf("%w: %v", errs.ErrMalformedRound, err)
	}
	return r, nil
}
