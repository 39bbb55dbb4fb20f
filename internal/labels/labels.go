// Package labels turns raw classifier labels into display rows.
//
// Raw labels follow the ImageNet synset layout, a nine character id followed
// by a comma separated synonym list:
//
//	n02124075 Egyptian cat, cat
package labels

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Brownie44l1/photo-classifier/internal/ranking"
)

// PrefixWidth is the width of the synset id in front of every raw label.
const PrefixWidth = 9

// ErrOutOfRange is returned for a raw label with nothing after the id.
var ErrOutOfRange = errors.New("label out of range")

// Row is one displayable prediction.
type Row struct {
	Rank        int     `json:"rank"`
	Label       string  `json:"label"`
	Percent     string  `json:"percent"`
	RawLabel    string  `json:"raw_label"`
	Probability float64 `json:"probability"`
}

func (r Row) String() string {
	return fmt.Sprintf("%d: %s %s", r.Rank, r.Label, r.Percent)
}

// ShortLabel strips the synset id and returns the first synonym word.
func ShortLabel(raw string) (string, error) {
	runes := []rune(raw)
	if len(runes) < PrefixWidth {
		return "", fmt.Errorf("%w: %q is shorter than the %d character prefix", ErrOutOfRange, raw, PrefixWidth)
	}

	fields := strings.Fields(string(runes[PrefixWidth:]))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %q has no name after the prefix", ErrOutOfRange, raw)
	}

	short := strings.ReplaceAll(fields[0], ",", "")
	if short == "" {
		return "", fmt.Errorf("%w: %q has no name after the prefix", ErrOutOfRange, raw)
	}
	return short, nil
}

// Percent renders a probability as a percentage with two decimals.
func Percent(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}

// Format converts ranked predictions into rows. Any unparsable label fails the
// whole call and no rows are returned.
func Format(preds []ranking.Prediction) ([]Row, error) {
	rows := make([]Row, 0, len(preds))
	for i, p := range preds {
		short, err := ShortLabel(p.Label)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		rows = append(rows, Row{
			Rank:        i + 1,
			Label:       short,
			Percent:     Percent(p.Probability),
			RawLabel:    p.Label,
			Probability: p.Probability,
		})
	}
	return rows, nil
}
