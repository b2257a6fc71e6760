package decision

import (
	"fmt"
	"strings"
)

// RenderReasoning 生成一行可审计的裁决说明。
func RenderReasoning(d Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s (score %.3f", d.Symbol, d.FinalAction, d.IntentScore)
	if d.IntentScore != d.BaseScore {
		fmt.Fprintf(&b, ", base %.3f", d.BaseScore)
	}
	b.WriteString(").")
	if len(d.TopCandidates) == 0 {
		b.WriteString(" No scoring candidates.")
	} else {
		parts := make([]string, 0, len(d.TopCandidates))
		for _, c := range d.TopCandidates {
			parts = append(parts, fmt.Sprintf("%s %s %+.3f", c.Source, c.Action, c.Signed()))
		}
		fmt.Fprintf(&b, " Top: %s.", strings.Join(parts, ", "))
	}
	if d.VetoApplied {
		b.WriteString(" Liquidity veto removed buy candidates.")
	}
	for _, r := range d.OverlayRules {
		fmt.Fprintf(&b, " Overlay: %s.", r)
	}
	if d.Reallocate {
		b.WriteString(" Capital flagged for reallocation.")
	}
	if len(d.Notes) > 0 {
		fmt.Fprintf(&b, " Degraded: %s.", strings.Join(d.Notes, " | "))
	}
	return b.String()
}
