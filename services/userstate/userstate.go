// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package userstate provides the durable, schema-validated per-(user, mode)
// conversational state store.
//
// Each record is keyed by a user id plus a conversation mode and carries two
// layers: a Static layer (schema-declared profile fields plus a content
// bias/evaluation annotation) and a Dynamic layer (append-only dialogue
// history, the predicted mental state, and a dialogue bias/evaluation
// annotation). Records live in BadgerDB as JSON values under
// "user/{user_id}/{mode}".
//
// Every operation is a read-modify-write cycle on the whole record. A
// striped per-record mutex serializes writers to the same record, closing
// the lost-update window that a bare read-modify-write would have.
package userstate

// Mode names a conversation context. Each mode owns an independent persisted
// record for the same user, with a slightly different derived-field set.
type Mode string

const (
	ModeStandard        Mode = "standard"
	ModeFile            Mode = "file"
	ModeMuseum          Mode = "museum"
	ModeMaximEvaluation Mode = "file_maxim_evaluation"
)

// AllModes lists every supported mode, in signup-creation order.
var AllModes = []Mode{ModeStandard, ModeFile, ModeMuseum, ModeMaximEvaluation}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeStandard, ModeFile, ModeMuseum, ModeMaximEvaluation:
		return true
	}
	return false
}

// UsesMaximEvaluation reports whether m carries maxim-evaluation annotations
// instead of bias annotations.
func (m Mode) UsesMaximEvaluation() bool {
	return m == ModeMaximEvaluation
}

// Derived annotation keys. Which keys a record carries depends on its mode:
// bias modes carry content_bias and dialogue_bias, the maxim-evaluation mode
// carries the two evaluation keys instead. mental_state is common to all.
const (
	DerivedMentalState        = "mental_state"
	DerivedContentBias        = "content_bias"
	DerivedDialogueBias       = "dialogue_bias"
	DerivedContentEvaluation  = "content_maxim_evaluation"
	DerivedDialogueEvaluation = "llm_dialogue_evaluation"
)

// Neutral defaults for derived annotations.
const (
	NeutralMentalState = "Neutral"
	NeutralAnnotation  = "None"
)

// DerivedKeys returns the derived annotation keys valid for this mode.
func (m Mode) DerivedKeys() []string {
	if m.UsesMaximEvaluation() {
		return []string{DerivedContentEvaluation, DerivedMentalState, DerivedDialogueEvaluation}
	}
	return []string{DerivedContentBias, DerivedMentalState, DerivedDialogueBias}
}

// Turn is one persisted dialogue exchange.
type Turn struct {
	User   string `json:"user"`
	System string `json:"system"`
}

// Static is the profile layer of a record. Profile keys are fixed by the
// schema config at creation time. Exactly one of ContentBias or
// ContentEvaluation is meaningful, selected by the record's mode.
type Static struct {
	Profile           map[string]string `json:"profile"`
	ContentBias       string            `json:"content_bias,omitempty"`
	ContentEvaluation string            `json:"content_maxim_evaluation,omitempty"`
}

// Dynamic is the session layer of a record: the append-only transcript plus
// the current derived annotations. Cleared by ResetDynamic.
type Dynamic struct {
	DialogueHistory    []Turn `json:"dialogue_history"`
	MentalState        string `json:"mental_state"`
	DialogueBias       string `json:"dialogue_bias,omitempty"`
	DialogueEvaluation string `json:"llm_dialogue_evaluation,omitempty"`
}

// Record is the full persisted state for one (user, mode) pair.
type Record struct {
	Mode    Mode    `json:"mode"`
	Static  Static  `json:"static"`
	Dynamic Dynamic `json:"dynamic"`
}

// newRecord builds a fresh record for mode with neutral derived defaults.
// Schema fields missing from initial default to "".
func newRecord(mode Mode, fields []string, initial map[string]string) *Record {
	profile := make(map[string]string, len(fields))
	for _, field := range fields {
		profile[field] = initial[field]
	}

	rec := &Record{
		Mode:   mode,
		Static: Static{Profile: profile},
		Dynamic: Dynamic{
			DialogueHistory: []Turn{},
			MentalState:     NeutralMentalState,
		},
	}
	if mode.UsesMaximEvaluation() {
		rec.Static.ContentEvaluation = NeutralAnnotation
		rec.Dynamic.DialogueEvaluation = NeutralAnnotation
	} else {
		rec.Static.ContentBias = NeutralAnnotation
		rec.Dynamic.DialogueBias = NeutralAnnotation
	}
	return rec
}

// resetDynamic restores the Dynamic layer to its creation-time state.
// The Static layer is untouched.
func (r *Record) resetDynamic() {
	r.Dynamic = Dynamic{
		DialogueHistory: []Turn{},
		MentalState:     NeutralMentalState,
	}
	if r.Mode.UsesMaximEvaluation() {
		r.Dynamic.DialogueEvaluation = NeutralAnnotation
	} else {
		r.Dynamic.DialogueBias = NeutralAnnotation
	}
}

// profileView flattens the record into the merged view returned by
// GetProfile: schema fields first, then the mode's derived annotations.
func (r *Record) profileView(fields []string) map[string]string {
	view := make(map[string]string, len(fields)+3)
	for _, field := range fields {
		view[field] = r.Static.Profile[field]
	}
	view[DerivedMentalState] = r.Dynamic.MentalState
	if r.Mode.UsesMaximEvaluation() {
		view[DerivedContentEvaluation] = r.Static.ContentEvaluation
		view[DerivedDialogueEvaluation] = r.Dynamic.DialogueEvaluation
	} else {
		view[DerivedContentBias] = r.Static.ContentBias
		view[DerivedDialogueBias] = r.Dynamic.DialogueBias
	}
	return view
}

// setDerived writes one derived annotation. Returns false when the key is
// not valid for the record's mode.
func (r *Record) setDerived(key, value string) bool {
	switch key {
	case DerivedMentalState:
		r.Dynamic.MentalState = value
	case DerivedContentBias:
		if r.Mode.UsesMaximEvaluation() {
			return false
		}
		r.Static.ContentBias = value
	case DerivedDialogueBias:
		if r.Mode.UsesMaximEvaluation() {
			return false
		}
		r.Dynamic.DialogueBias = value
	case DerivedContentEvaluation:
		if !r.Mode.UsesMaximEvaluation() {
			return false
		}
		r.Static.ContentEvaluation = value
	case DerivedDialogueEvaluation:
		if !r.Mode.UsesMaximEvaluation() {
			return false
		}
		r.Dynamic.DialogueEvaluation = value
	default:
		return false
	}
	return true
}
