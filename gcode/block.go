package gcode

import (
	"errors"
	"strings"
)

// Block is one line of words.
type Block []Word

// Validate checks that every word has a letter and that no non-G
// word is repeated.
func (b Block) Validate() error {
	var checkWord [256]bool
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && checkWord[g.W] {
			return errors.New("word was repeated in a block")
		}
		checkWord[g.W] = true
	}
	return nil
}

// String formats the block with words separated by spaces.
func (b Block) String() string {
	parts := make([]string, len(b))
	for i, g := range b {
		parts[i] = g.String()
	}
	return strings.Join(parts, " ")
}
