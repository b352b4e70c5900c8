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

package uploader

import "io"

// progressTracker turns byte counts into throttled ProgressFunc calls: at
// most one call per integer percentage point.
type progressTracker struct {
	total   int64
	done    int64
	last    int
	onEvent ProgressFunc
}

func newProgressTracker(total int64, fn ProgressFunc) *progressTracker {
	return &progressTracker{total: total, last: -1, onEvent: fn}
}

func (p *progressTracker) add(n int64) {
	if p == nil || p.onEvent == nil || n <= 0 {
		return
	}
	p.done += n

	fraction := 1.0
	if p.total > 0 && p.done < p.total {
		fraction = float64(p.done) / float64(p.total)
	}
	percent := int(fraction * 100)
	if percent <= p.last {
		return
	}
	p.last = percent
	p.onEvent(fraction)
}

// reader wraps r so every byte read is counted.
func (p *progressTracker) reader(r io.Reader) io.Reader {
	return &countingReader{r: r, p: p}
}

type countingReader struct {
	r io.Reader
	p *progressTracker
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.p.add(int64(n))
	return n, err
}
