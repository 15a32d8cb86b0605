package builder

import "strings"

// WrapText breaks text into lines no wider than width, splitting at spaces.
// Explicit newlines are kept; a single word wider than width stays whole.
func WrapText(b PDFBuilder, text, font string, size, width float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if b.MeasureText(candidate, font, size) > width {
				out = append(out, line)
				line = w
				continue
			}
			line = candidate
		}
		out = append(out, line)
	}
	return out
}

// DrawTable draws the table top-down from opts.Y, starting new pages of the
// same size when a row would cross the bottom margin. Header rows repeat on
// each new page. It returns the page builder holding the last row.
func (p *pageBuilderImpl) DrawTable(table Table, opts TableOptions) PageBuilder {
	if len(table.Columns) == 0 || len(table.Rows) == 0 {
		return p
	}
	cur := p
	borderWidth := opts.BorderWidth
	if borderWidth == 0 {
		borderWidth = 0.5
	}
	cellPad := opts.CellPadding
	if cellPad == 0 {
		cellPad = 4
	}
	defaultSize := opts.DefaultSize
	if defaultSize == 0 {
		defaultSize = defaultFontSize
	}
	leading := opts.LineHeight
	if leading == 0 {
		leading = 1.2
	}
	headerCount := min(table.HeaderRows, len(table.Rows))
	_, pageHeight := cur.Size()
	top := opts.Y
	if top == 0 {
		top = pageHeight - opts.TopMargin
	}
	// Continuation pages start below the top margin when one is set.
	pageTop := top
	if opts.TopMargin > 0 {
		pageTop = pageHeight - opts.TopMargin
	}

	resolvePadding := func(pad *CellPadding) CellPadding {
		if pad != nil {
			return *pad
		}
		return CellPadding{Top: cellPad, Right: cellPad, Bottom: cellPad, Left: cellPad}
	}
	spanWidth := func(startCol, span int) float64 {
		end := min(startCol+max(span, 1), len(table.Columns))
		width := 0.0
		for i := startCol; i < end; i++ {
			width += table.Columns[i]
		}
		return width
	}
	cellFont := func(c TableCell) string {
		if c.Font != "" {
			return c.Font
		}
		return opts.DefaultFont
	}
	cellSize := func(c TableCell) float64 {
		if c.FontSize > 0 {
			return c.FontSize
		}
		return defaultSize
	}

	// Wrap every cell once; row height follows the tallest cell.
	wrapped := make([][][]string, len(table.Rows))
	rowHeights := make([]float64, len(table.Rows))
	for i, row := range table.Rows {
		wrapped[i] = make([][]string, len(row.Cells))
		h := opts.RowHeight
		for col := 0; col < len(row.Cells) && col < len(table.Columns); col++ {
			cell := row.Cells[col]
			pad := resolvePadding(cell.Padding)
			size := cellSize(cell)
			inner := spanWidth(col, cell.ColSpan) - pad.Left - pad.Right
			lines := WrapText(cur.parent, cell.Text, cellFont(cell), size, inner)
			wrapped[i][col] = lines
			if cellH := float64(len(lines))*size*leading + pad.Top + pad.Bottom; cellH > h {
				h = cellH
			}
			col += max(cell.ColSpan, 1) - 1
		}
		rowHeights[i] = h
	}

	curY := top
	var renderRow func(i int, allowBreak bool)
	renderRow = func(i int, allowBreak bool) {
		row, height := table.Rows[i], rowHeights[i]
		if allowBreak && curY-height < opts.BottomMargin && curY < pageTop {
			w, h := cur.Size()
			cur = cur.parent.NewPage(w, h).(*pageBuilderImpl)
			curY = pageTop
			for hi := 0; hi < headerCount; hi++ {
				renderRow(hi, false)
			}
		}
		x := opts.X
		for col := 0; col < len(table.Columns) && col < len(row.Cells); col++ {
			cell := row.Cells[col]
			span := max(cell.ColSpan, 1)
			width := spanWidth(col, span)
			pad := resolvePadding(cell.Padding)
			fill := cell.BackgroundColor
			if i < headerCount && fill == nil {
				fill = opts.HeaderFill
			}
			if fill != nil {
				cur.DrawRectangle(x, curY-height, width, height, RectOptions{Fill: true, FillColor: *fill})
			}
			if borderWidth > 0 {
				cur.DrawRectangle(x, curY-height, width, height, RectOptions{
					Stroke:      true,
					StrokeColor: opts.BorderColor,
					LineWidth:   borderWidth,
				})
			}
			size := cellSize(cell)
			font := cellFont(cell)
			lines := wrapped[i][col]
			block := float64(len(lines)) * size * leading
			textY := curY - pad.Top - size
			switch cell.VAlign {
			case VAlignMiddle:
				textY = curY - (height-block)/2 - size
			case VAlignBottom:
				textY = curY - height + pad.Bottom + block - size
			}
			for _, line := range lines {
				textX := x + pad.Left
				if cell.HAlign == HAlignCenter || cell.HAlign == HAlignRight {
					available := width - pad.Left - pad.Right
					lw := cur.parent.MeasureText(line, font, size)
					if cell.HAlign == HAlignCenter {
						textX += (available - lw) / 2
					} else {
						textX += available - lw
					}
				}
				if line != "" {
					cur.DrawText(line, textX, textY, TextOptions{Font: font, FontSize: size, Color: cell.TextColor})
				}
				textY -= size * leading
			}
			x += width
			col += span - 1
		}
		curY -= height
		cur.cursor = curY
	}

	for i := range table.Rows {
		renderRow(i, true)
	}
	return cur
}
