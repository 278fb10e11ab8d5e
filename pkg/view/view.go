// Package view renders the derived board document from a projection.
//
// Rendering is a pure function: the same projection always produces
// byte-identical output, so a regenerated board never causes a spurious
// diff. The board groups units by lane, then by status in lifecycle order,
// units sorted by id. Views are disposable caches; deleting one loses
// nothing the log cannot rebuild.
package view

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/daviddao/worklog/pkg/model"
)

// BoardFile is the board document's file name inside the views directory.
const BoardFile = "board.md"

const generatedNotice = "<!-- generated by worklog from the event log; edits here are overwritten -->"

// Render produces the board document for p.
func Render(p model.Projection) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Work Unit Board\n\n")
	buf.WriteString(generatedNotice + "\n")

	byLane := map[string][]*model.WorkUnit{}
	for _, wu := range p.Units() {
		byLane[wu.Lane] = append(byLane[wu.Lane], wu)
	}
	lanes := make([]string, 0, len(byLane))
	for lane := range byLane {
		lanes = append(lanes, lane)
	}
	sort.Strings(lanes)

	for _, lane := range lanes {
		buf.WriteString("\n## Lane: " + laneLabel(lane) + "\n")
		for _, st := range model.Statuses() {
			var units []*model.WorkUnit
			for _, wu := range byLane[lane] {
				if wu.Status == st {
					units = append(units, wu)
				}
			}
			if len(units) == 0 {
				continue
			}
			buf.WriteString("\n### " + string(st) + "\n\n")
			for _, wu := range units {
				buf.WriteString(unitLine(wu))
			}
		}
	}
	return buf.Bytes()
}

func laneLabel(lane string) string {
	if lane == "" {
		return "(none)"
	}
	return lane
}

func unitLine(wu *model.WorkUnit) string {
	if wu.Title == "" {
		return fmt.Sprintf("- %s\n", wu.ID)
	}
	return fmt.Sprintf("- %s: %s\n", wu.ID, wu.Title)
}

var unitLineRe = regexp.MustCompile(`^- (WU-[0-9]+)(?::.*)?$`)

// Parse extracts the (id, displayed status) pairs from a rendered board.
// Extraction is best-effort data recovery for the sync validator: lines it
// cannot read simply yield no entry, which the comparison then reports as
// a missing unit.
func Parse(content []byte) map[string]model.Status {
	out := map[string]model.Status{}
	var current model.Status
	for _, line := range strings.Split(string(content), "\n") {
		if after, ok := strings.CutPrefix(line, "### "); ok {
			st := model.Status(strings.TrimSpace(after))
			current = ""
			if st.Valid() {
				current = st
			}
			continue
		}
		if m := unitLineRe.FindStringSubmatch(line); m != nil && current != "" {
			out[m[1]] = current
		}
	}
	return out
}
