// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphview

import (
	"fmt"
	"html"
	"io"
	"strings"
)

// RenderSVG writes s as a standalone SVG document.
//
// Draw order is edges, nodes, labels, legend so labels stay on top.
func RenderSVG(w io.Writer, s Scene) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.0f %.0f" width="%.0f" height="%.0f">`,
		s.Width, s.Height, s.Width, s.Height))
	sb.WriteString("\n")

	if s.Empty() {
		sb.WriteString(fmt.Sprintf(`  <text x="%.1f" y="%.1f" text-anchor="middle" font-size="14">No graph data available</text>`,
			s.Width/2, s.Height/2))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(`  <text x="%.1f" y="%.1f" text-anchor="middle" font-size="12">Run a scan to build the impact graph</text>`,
			s.Width/2, s.Height/2+20))
		sb.WriteString("\n")
	}

	for _, e := range s.Edges {
		sb.WriteString(fmt.Sprintf(`  <line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.0f" data-source="%s" data-target="%s"/>`,
			e.X1, e.Y1, e.X2, e.Y2, e.Color, e.Width, html.EscapeString(e.Source), html.EscapeString(e.Target)))
		sb.WriteString("\n")
	}

	for _, n := range s.Nodes {
		sb.WriteString(fmt.Sprintf(`  <circle cx="%.1f" cy="%.1f" r="%.0f" fill="%s" data-id="%s" data-type="%s"/>`,
			n.X, n.Y, n.Radius, n.Color, html.EscapeString(n.ID), html.EscapeString(string(n.Type))))
		sb.WriteString("\n")
	}

	for _, n := range s.Nodes {
		if !n.ShowLabel {
			continue
		}
		sb.WriteString(fmt.Sprintf(`  <text x="%.1f" y="%.1f" text-anchor="middle" font-size="12">%s</text>`,
			n.X, n.Y-20, html.EscapeString(n.Label)))
		sb.WriteString("\n")
	}

	if !s.Empty() {
		for i, l := range s.Legend {
			sb.WriteString(fmt.Sprintf(`  <text x="%d" y="%.0f" font-size="12" fill="%s">%s (%d)</text>`,
				16+100*i, s.Height-16, l.Color, html.EscapeString(l.Label), l.Count))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
