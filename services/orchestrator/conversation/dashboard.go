// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/echomind/pkg/config"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

// buildDashboard renders the human-readable profile and session view
// returned alongside every turn.
//
// The profile block lists the schema-declared fields in sorted order, then
// the derived annotations the mode carries. The retrieval mode shows the
// content bias line; the file and museum modes omit it because their
// context comes from the caller, not the index. The maxim-evaluation mode
// shows the two rubric annotations instead of bias lines.
func buildDashboard(profile map[string]string, schema *config.SchemaConfig, mode userstate.Mode, session []datatypes.SessionTurn) string {
	var b strings.Builder
	b.WriteString("User Profile:\n")
	for _, field := range schema.Fields() {
		fmt.Fprintf(&b, "  - %s: %s\n", titleWords(field), profile[field])
	}

	switch {
	case mode.UsesMaximEvaluation():
		fmt.Fprintf(&b, "  - Content Maxim Evaluation: %s\n", profile[userstate.DerivedContentEvaluation])
		fmt.Fprintf(&b, "  - Predicted Mental State: %s\n", profile[userstate.DerivedMentalState])
		fmt.Fprintf(&b, "  - Dialogue Maxim Evaluation: %s\n", profile[userstate.DerivedDialogueEvaluation])
	case mode == userstate.ModeStandard:
		fmt.Fprintf(&b, "  - Content Bias: %s\n", profile[userstate.DerivedContentBias])
		fmt.Fprintf(&b, "  - Predicted Mental State: %s\n", profile[userstate.DerivedMentalState])
		fmt.Fprintf(&b, "  - User Dialogue Bias: %s\n", profile[userstate.DerivedDialogueBias])
	default:
		fmt.Fprintf(&b, "  - Predicted Mental State: %s\n", profile[userstate.DerivedMentalState])
		fmt.Fprintf(&b, "  - User Dialogue Bias: %s\n", profile[userstate.DerivedDialogueBias])
	}

	b.WriteString("\nCurrent Session Chat History:\n")
	for _, turn := range session {
		fmt.Fprintf(&b, "%s\n%s\n\n", turn.User, turn.System)
	}
	return b.String()
}
