package fetch

import "fmt"

// Window is an inclusive block range
type Window struct {
	From uint64
	To   uint64
}

// Size returns the number of blocks in the window
func (w Window) Size() uint64 {
	if w.To < w.From {
		return 0
	}
	return w.To - w.From + 1
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.From, w.To)
}

// Plan returns the contiguous windows of at most batchSize blocks that
// cover (checkpoint, head]. It returns nil when nothing is pending.
func Plan(checkpoint, head, batchSize uint64) []Window {
	if checkpoint >= head {
		return nil
	}
	return Split(Window{From: checkpoint + 1, To: head}, batchSize)
}

// Split cuts w into consecutive sub-windows of at most size blocks
func Split(w Window, size uint64) []Window {
	if w.To < w.From {
		return nil
	}
	if size == 0 {
		size = 1
	}

	windows := make([]Window, 0, (w.Size()+size-1)/size)
	for from := w.From; ; {
		to := w.To
		if w.To-from >= size {
			to = from + size - 1
		}
		windows = append(windows, Window{From: from, To: to})
		if to == w.To {
			break
		}
		from = to + 1
	}
	return windows
}
