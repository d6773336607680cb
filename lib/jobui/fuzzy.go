// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"slices"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult is the outcome of matching one pattern against one text.
// Score is zero when the pattern does not match. Positions are rune
// indexes into the text, ascending.
type FuzzyResult struct {
	Score     int
	Positions []int
}

var initScoring = sync.OnceFunc(func() { algo.Init("default") })

// newSlab allocates the scratch space fzf reuses across matches. One
// slab serves one goroutine.
func newSlab() *util.Slab {
	return util.MakeSlab(100*1024, 2048)
}

// fuzzyMatch runs fzf's V2 algorithm, case-insensitively. slab may be
// nil, in which case fzf allocates per call.
func fuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 || text == "" {
		return FuzzyResult{}
	}
	initScoring()

	lowered := []rune(strings.ToLower(string(pattern)))
	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Start < 0 || result.Score <= 0 {
		return FuzzyResult{}
	}

	matched := FuzzyResult{Score: int(result.Score)}
	if positions != nil {
		matched.Positions = append([]int(nil), (*positions)...)
		slices.Sort(matched.Positions)
	}
	return matched
}
