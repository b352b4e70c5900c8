/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package pins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/uploader"
)

// Failure is a pin that could not be removed.
type Failure struct {
	Pin uploader.Pin
	Err error
}

// Report is the outcome of a cleanup. Cleanup is best effort, so a report
// can hold both removed and failed pins.
type Report struct {
	Unpinned []uploader.Pin
	Failed   []Failure
}

// Err joins the failures, or returns nil when every unpin succeeded.
func (r Report) Err() error {
	var list errors.List
	for _, f := range r.Failed {
		list.Add(errors.Wrap("unpin", f.Pin.Hash, f.Err))
	}
	return list.ErrOrNil()
}

func (r Report) String() string {
	return fmt.Sprintf("%d unpinned, %d failed", len(r.Unpinned), len(r.Failed))
}

// unpinAll removes pins with bounded concurrency. A failed unpin is
// recorded and does not stop the others, so the group functions never
// return an error and no shared context is cancelled.
func (m *Manager) unpinAll(ctx context.Context, pins []uploader.Pin) Report {
	var (
		report Report
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(m.concurrency)

	for _, p := range pins {
		g.Go(func() error {
			err := m.backend.Unpin(ctx, p.Hash)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.WarnContext(ctx, "Failed to unpin %s (%s@%s): %v", p.Hash, p.Metadata.Branch, shortCommit(p.Metadata.Commit), err)
				report.Failed = append(report.Failed, Failure{Pin: p, Err: err})
				return nil
			}
			logging.DebugContext(ctx, "Unpinned %s (%s@%s)", p.Hash, p.Metadata.Branch, shortCommit(p.Metadata.Commit))
			report.Unpinned = append(report.Unpinned, p)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Unpinned, func(i, j int) bool { return report.Unpinned[i].Hash < report.Unpinned[j].Hash })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Pin.Hash < report.Failed[j].Pin.Hash })

	if len(pins) > 0 {
		logging.InfoContext(ctx, "Pin cleanup for %s: %s", m.name, report)
	}
	return report
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
