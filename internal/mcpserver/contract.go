package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/timethings/internal/metasync"
)

const contractRules = `## Rules

1. The header is a YAML block fenced by ` + "`---`" + ` lines and must start on the
   first line of the note.
2. Nested fields are addressed with dot-separated keys (` + "`meta.status`" + `).
   A nested field belongs to the nearest less-indented parent line.
3. Do not hand-edit the managed fields below while the user is typing: they
   are rewritten after each burst of editing activity.
4. A duration value that does not match its format is left untouched until it
   is fixed by hand.

## Format tokens

Timestamps use moment-style tokens: ` + "`YYYY MM DD HH mm ss SSS Z`" + `;
text inside ` + "`[brackets]`" + ` is literal.
Durations use ` + "`Y M W D H m s S`" + ` tokens; the widest unit is not capped
(` + "`HH:mm:ss`" + ` renders 30 hours as ` + "`30:00:00`" + `).
`

// HeaderContract describes the frontmatter fields maintained under the
// given settings.
func HeaderContract(s metasync.Settings) string {
	var b strings.Builder
	b.WriteString("# Header Format Contract\n\n")
	b.WriteString("## Managed fields\n\n")

	b.WriteString(describeKey("Modified timestamp", s.Modified))
	if s.Modified.Enabled {
		zone := "local time"
		if s.UTC {
			zone = "UTC"
		}
		fmt.Fprintf(&b, "  Written in %s once a session has %s of active editing.\n", zone, s.ModifiedThreshold)
	}
	b.WriteString(describeKey("Edit duration", s.Duration))
	if s.Duration.Enabled {
		b.WriteString("  Grows by the flush interval on every header write.\n")
	}

	b.WriteString("\n")
	b.WriteString(contractRules)
	return b.String()
}

func describeKey(label string, k metasync.KeySettings) string {
	if !k.Enabled {
		return fmt.Sprintf("- %s: disabled\n", label)
	}
	return fmt.Sprintf("- %s: `%s`, format `%s`\n", label, k.Name, k.Format)
}
