// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"jobs", "jobs", 0},
		{"dashbord", "dashboard", 1},
		{"kitten", "sitting", 3},
		{"logout", "login", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{{Name: "login"}, {Name: "logout"}, {Name: "replay"}}
	if got := suggestCommand("replya", commands); got != "replay" {
		t.Errorf("suggestCommand(replya) = %q, want replay", got)
	}
	if got := suggestCommand("frobnicate", commands); got != "" {
		t.Errorf("suggestCommand(frobnicate) = %q, want no suggestion", got)
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.BoolP("yes", "y", false, "")
	flagSet.String("description-file", "", "")

	if got := suggestFlag([]string{"-y", "--descripton-file=x"}, flagSet); got != "--description-file" {
		t.Errorf("suggestFlag = %q, want --description-file", got)
	}
	if got := suggestFlag([]string{"--", "--yse"}, flagSet); got != "" {
		t.Errorf("flags after -- should be ignored, got %q", got)
	}
}
