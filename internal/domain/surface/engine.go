package surface

import (
	"bytes"
	"errors"
	"html"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrDisposed is returned by engine operations after Dispose
var ErrDisposed = errors.New("engine disposed")

const (
	bracketedOn   = "\x1b[?2004h"
	bracketedOff  = "\x1b[?2004l"
	pasteStart    = "\x1b[200~"
	pasteEnd      = "\x1b[201~"
	probeTailSize = len(bracketedOn) - 1

	// MaxPartialLine bounds the unterminated last line. Longer runs without
	// a newline are flushed into the scrollback as lines of this size.
	MaxPartialLine = 64 * 1024
)

var (
	linkPattern   = regexp.MustCompile(`https?://[^\s<>"'\x60\x1b]+`)
	linkTrailTrim = ".,;:!?)]}'\""
	htmlPolicy    = newHTMLPolicy()
)

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("pre", "span")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// CellMetrics describes the size of one character cell in pixels at zoom 1.
type CellMetrics struct {
	Width  float64
	Height float64
}

// Match is a search hit. Column and Length are display cells in the plain
// line, so wide characters count twice.
type Match struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Length int `json:"length"`
}

// SearchOptions tunes FindNext and FindPrevious.
type SearchOptions struct {
	CaseSensitive bool `json:"case_sensitive"`
	Regex         bool `json:"regex"`
}

// Link is a URL found in the scrollback. Start and End are display cells.
type Link struct {
	Line  int    `json:"line"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	URL   string `json:"url"`
}

// Engine is the per-session terminal model: scrollback, geometry and the
// capabilities the surface exposes (search, serialization, width table,
// link detection, bracketed paste).
type Engine struct {
	lines    []string // raw complete lines, may hold escapes or legacy bytes
	partial  []byte
	maxLines int

	cells CellMetrics
	zoom  float64
	rows  uint16
	cols  uint16

	bracketed bool
	probeTail string

	width    *runewidth.Condition
	last     *Match
	disposed bool
}

// NewEngine creates an engine with the given scrollback limit and cell size.
func NewEngine(scrollback int, cells CellMetrics, zoom float64) *Engine {
	if scrollback <= 0 {
		scrollback = 5000
	}
	if zoom <= 0 {
		zoom = 1
	}
	cond := runewidth.NewCondition()
	cond.EastAsianWidth = false
	return &Engine{
		maxLines: scrollback,
		cells:    cells,
		zoom:     zoom,
		width:    cond,
	}
}

// Write appends backend output to the scrollback.
func (e *Engine) Write(data []byte) {
	if e.disposed || len(data) == 0 {
		return
	}
	e.trackModes(data)

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		if len(e.partial) > 0 {
			line = append(e.partial, line...)
			e.partial = e.partial[:0]
		}
		e.pushLine(string(bytes.TrimSuffix(line, []byte{'\r'})))
		data = data[i+1:]
	}
	if len(data) > 0 {
		e.appendPartial(data)
	}
}

// appendPartial grows the unterminated line. Text before the last carriage
// return has been overwritten, so it is dropped; what remains is flushed in
// MaxPartialLine pieces.
func (e *Engine) appendPartial(data []byte) {
	from := len(e.partial) - 1
	if from < 0 {
		from = 0
	}
	e.partial = append(e.partial, data...)

	// A trailing \r may still be the first half of \r\n.
	if cr := bytes.LastIndexByte(e.partial[from:len(e.partial)-1], '\r'); cr >= 0 {
		e.partial = append(e.partial[:0], e.partial[from+cr:]...)
	}

	for len(e.partial) > MaxPartialLine {
		cut := MaxPartialLine
		for cut > 0 && !utf8.RuneStart(e.partial[cut]) {
			cut--
		}
		if cut == 0 {
			cut = MaxPartialLine
		}
		e.pushLine(string(e.partial[:cut]))
		e.partial = append(e.partial[:0], e.partial[cut:]...)
	}
}

func (e *Engine) pushLine(line string) {
	e.lines = append(e.lines, line)
	if over := len(e.lines) - e.maxLines; over > 0 {
		clear(e.lines[:over])
		e.lines = e.lines[over:]
		e.last = nil
	}
}

// trackModes follows the shell enabling and disabling bracketed paste. The
// probe keeps a short tail so sequences split across chunks are seen.
func (e *Engine) trackModes(data []byte) {
	probe := e.probeTail + string(data)
	on := strings.LastIndex(probe, bracketedOn)
	off := strings.LastIndex(probe, bracketedOff)
	switch {
	case on > off:
		e.bracketed = true
	case off > on:
		e.bracketed = false
	}
	if len(probe) > probeTailSize {
		probe = probe[len(probe)-probeTailSize:]
	}
	e.probeTail = probe
}

// BracketedPaste reports whether the shell asked for bracketed paste.
func (e *Engine) BracketedPaste() bool {
	return e.bracketed
}

// Paste encodes clipboard text for the shell. Line breaks become carriage
// returns; bracketed paste wraps the text and strips embedded end markers.
func (e *Engine) Paste(text string) []byte {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")
	if !e.bracketed {
		return []byte(text)
	}
	text = strings.ReplaceAll(text, pasteEnd, "")
	return []byte(pasteStart + text + pasteEnd)
}

// ============================================================================
// Geometry
// ============================================================================

// Fit computes rows and cols for a pixel size using the cell metrics scaled
// by zoom. It reports false when the size cannot hold a single cell.
func (e *Engine) Fit(width, height float64) (rows, cols uint16, ok bool) {
	cw := e.cells.Width * e.zoom
	ch := e.cells.Height * e.zoom
	if e.disposed || width <= 0 || height <= 0 || cw <= 0 || ch <= 0 {
		return 0, 0, false
	}
	c := math.Floor(width / cw)
	r := math.Floor(height / ch)
	if c < 1 || r < 1 {
		return 0, 0, false
	}
	e.rows = uint16(math.Min(r, math.MaxUint16))
	e.cols = uint16(math.Min(c, math.MaxUint16))
	return e.rows, e.cols, true
}

// Size returns the last fitted geometry.
func (e *Engine) Size() (rows, cols uint16) {
	return e.rows, e.cols
}

// SetZoom updates the cell scale in place.
func (e *Engine) SetZoom(zoom float64) {
	if zoom > 0 {
		e.zoom = zoom
	}
}

// Zoom returns the cell scale.
func (e *Engine) Zoom() float64 {
	return e.zoom
}

// ============================================================================
// Text
// ============================================================================

// Lines returns the scrollback as plain text lines, including the
// unterminated last line when present.
func (e *Engine) Lines() []string {
	out := make([]string, 0, len(e.lines)+1)
	for _, raw := range e.lines {
		out = append(out, plain(raw))
	}
	if len(e.partial) > 0 {
		out = append(out, plain(string(e.partial)))
	}
	return out
}

// plain strips escape sequences, decodes legacy charsets and applies
// carriage-return overwrite, keeping what a viewer would last have seen.
func plain(raw string) string {
	s := strings.TrimRight(ansi.Strip(decode(raw)), "\r")
	if i := strings.LastIndexByte(s, '\r'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// decode converts non-UTF-8 output using the detected legacy charset.
func decode(raw string) string {
	if utf8.ValidString(raw) {
		return raw
	}
	result, err := chardet.NewTextDetector().DetectBest([]byte(raw))
	if err == nil && result != nil {
		if enc, _ := charset.Lookup(result.Charset); enc != nil {
			if s, _, err := transform.String(enc.NewDecoder(), raw); err == nil {
				return s
			}
		}
	}
	return strings.ToValidUTF8(raw, string(utf8.RuneError))
}

// Width returns the display width of s in cells.
func (e *Engine) Width(s string) int {
	return e.width.StringWidth(ansi.Strip(s))
}

// Text serializes the scrollback as plain text.
func (e *Engine) Text() (string, error) {
	if e.disposed {
		return "", ErrDisposed
	}
	return strings.Join(e.Lines(), "\n"), nil
}

// HTML serializes the scrollback as sanitized HTML with links as anchors.
func (e *Engine) HTML() (string, error) {
	if e.disposed {
		return "", ErrDisposed
	}

	var b strings.Builder
	b.WriteString(`<pre class="termhub">`)
	for i, line := range e.Lines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		last := 0
		for _, loc := range findLinks(line) {
			b.WriteString(html.EscapeString(line[last:loc[0]]))
			url := line[loc[0]:loc[1]]
			b.WriteString(`<a href="` + html.EscapeString(url) + `">` + html.EscapeString(url) + `</a>`)
			last = loc[1]
		}
		b.WriteString(html.EscapeString(line[last:]))
	}
	b.WriteString(`</pre>`)
	return htmlPolicy.Sanitize(b.String()), nil
}

// Links returns every URL in the scrollback.
func (e *Engine) Links() []Link {
	var links []Link
	for i, line := range e.Lines() {
		for _, loc := range findLinks(line) {
			start := e.Width(line[:loc[0]])
			links = append(links, Link{
				Line:  i,
				Start: start,
				End:   start + e.Width(line[loc[0]:loc[1]]),
				URL:   line[loc[0]:loc[1]],
			})
		}
	}
	return links
}

func findLinks(line string) [][2]int {
	var out [][2]int
	for _, loc := range linkPattern.FindAllStringIndex(line, -1) {
		end := loc[1]
		for end > loc[0] && strings.IndexByte(linkTrailTrim, line[end-1]) >= 0 {
			end--
		}
		if end > loc[0]+len("http://") {
			out = append(out, [2]int{loc[0], end})
		}
	}
	return out
}

// ============================================================================
// Search
// ============================================================================

// FindNext returns the first match after the previous one, wrapping around.
func (e *Engine) FindNext(query string, opts SearchOptions) (Match, bool) {
	return e.find(query, opts, false)
}

// FindPrevious returns the last match before the previous one, wrapping around.
func (e *Engine) FindPrevious(query string, opts SearchOptions) (Match, bool) {
	return e.find(query, opts, true)
}

// ClearSearch forgets the search position.
func (e *Engine) ClearSearch() {
	e.last = nil
}

func (e *Engine) find(query string, opts SearchOptions, backward bool) (Match, bool) {
	if e.disposed || query == "" {
		return Match{}, false
	}
	re, err := compileQuery(query, opts)
	if err != nil {
		return Match{}, false
	}

	var all []Match
	for i, line := range e.Lines() {
		for _, loc := range re.FindAllStringIndex(line, -1) {
			if loc[1] == loc[0] {
				continue
			}
			all = append(all, Match{
				Line:   i,
				Column: e.Width(line[:loc[0]]),
				Length: e.Width(line[loc[0]:loc[1]]),
			})
		}
	}
	if len(all) == 0 {
		e.last = nil
		return Match{}, false
	}

	pick := pickMatch(all, e.last, backward)
	e.last = &pick
	return pick, true
}

func pickMatch(all []Match, last *Match, backward bool) Match {
	if last == nil {
		if backward {
			return all[len(all)-1]
		}
		return all[0]
	}
	if backward {
		for i := len(all) - 1; i >= 0; i-- {
			if before(all[i], *last) {
				return all[i]
			}
		}
		return all[len(all)-1]
	}
	for _, m := range all {
		if before(*last, m) {
			return m
		}
	}
	return all[0]
}

func before(a, b Match) bool {
	return a.Line < b.Line || (a.Line == b.Line && a.Column < b.Column)
}

func compileQuery(query string, opts SearchOptions) (*regexp.Regexp, error) {
	expr := query
	if !opts.Regex {
		expr = regexp.QuoteMeta(query)
	}
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// Dispose releases the scrollback. The engine is unusable afterwards.
func (e *Engine) Dispose() {
	e.disposed = true
	e.lines = nil
	e.partial = nil
	e.last = nil
}

// Disposed reports whether Dispose was called.
func (e *Engine) Disposed() bool {
	return e.disposed
}
