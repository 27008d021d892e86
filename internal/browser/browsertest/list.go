package browsertest

import (
	"fmt"

	"github.com/xkilldash9x/sdsbook/internal/browser"
)

// VirtualList models a windowed list: only Window consecutive rows out of
// [Min, Max] are rendered, each keyed by data-index, and scrolling the
// Scroller container by RowHeight pixels shifts the window by one row.
type VirtualList struct {
	Container string
	Scroller  string
	Min, Max  int
	Window    int
	RowHeight int

	// Empty renders the container with no rows until the first scroll.
	Empty bool

	offset   int
	rendered []int
}

// Attach renders the initial window into d and follows scrolls of Scroller.
func (v *VirtualList) Attach(d *Driver) *VirtualList {
	if v.RowHeight <= 0 {
		v.RowHeight = 100
	}
	v.render(d)
	prev := d.onScroll
	d.OnScroll(func(d *Driver, selector string, px int) {
		if selector == v.Scroller {
			v.scroll(d, px)
		}
		if prev != nil {
			prev(d, selector, px)
		}
	})
	return v
}

// First returns the first rendered index.
func (v *VirtualList) First() int { return v.Min + v.offset }

// Last returns the last rendered index.
func (v *VirtualList) Last() int { return v.First() + v.Window - 1 }

// Children is the locator of the rendered rows, in DOM order.
func (v *VirtualList) Children() browser.Locator {
	return browser.Query(v.Container).Find(":scope > *")
}

// Row is the locator of the row with the given data-index.
func (v *VirtualList) Row(index int) browser.Locator {
	return browser.Query(fmt.Sprintf("%s > div[data-index='%d']", v.Container, index))
}

func (v *VirtualList) scroll(d *Driver, px int) {
	v.Empty = false
	v.offset += px / v.RowHeight
	maxOffset := v.Max - v.Min - v.Window + 1
	if v.offset > maxOffset {
		v.offset = maxOffset
	}
	if v.offset < 0 {
		v.offset = 0
	}
	v.render(d)
}

func (v *VirtualList) render(d *Driver) {
	children := v.Children()
	for i, idx := range v.rendered {
		delete(d.attrs, children.Nth(i).String())
		delete(d.counts, v.Row(idx).String())
		delete(d.counts, fmt.Sprintf("div[data-index='%d']", idx))
	}
	v.rendered = v.rendered[:0]
	delete(d.counts, children.String())
	if v.Empty {
		return
	}

	for idx := v.First(); idx <= v.Last() && idx <= v.Max; idx++ {
		i := len(v.rendered)
		d.SetAttr(children.Nth(i).String(), "data-index", fmt.Sprint(idx))
		d.counts[v.Row(idx).String()] = 1
		d.counts[fmt.Sprintf("div[data-index='%d']", idx)] = 1
		v.rendered = append(v.rendered, idx)
	}
	d.counts[children.String()] = len(v.rendered)
}
