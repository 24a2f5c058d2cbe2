// Package chat answers farm questions: a fixed keyword knowledge base first,
// then an optional completion service, then canned replies.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strings"
	"unicode"
)

const (
	SourceKnowledgeBase = "knowledge_base"
	SourceCompletion    = "completion"
	SourceFallback      = "fallback"
	SourceError         = "error"
)

// Apology is the only reply given when answering fails internally.
const Apology = "I'm sorry, I'm having trouble processing your request right now. Please try again later."

const systemPrompt = "You are an agricultural expert assistant for the Ibali Farm Platform. " +
	"Provide helpful, practical advice about farming, livestock, and agricultural management. "

var cannedReplies = [...]string{
	"That's a great question about farming! I'd recommend checking with your local agricultural extension office for specific advice.",
	"For detailed farming guidance, consider consulting agricultural experts in your area or checking reputable farming resources online.",
	"I understand you're looking for farming advice. The dashboard data might have relevant insights, or you could consult with agricultural specialists.",
}

// Completer sends a single-turn prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Topic struct {
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
	Advice   string `json:"advice"`
}

// KnowledgeBase is searched in order and the first matching topic answers.
// Pest control comes first so a question naming both a crop and a pest gets
// the pest advice.
var KnowledgeBase = []Topic{
	{"pest_control", "aphids", "Use ladybugs, neem oil, or insecticidal soap. Remove affected leaves."},
	{"pest_control", "caterpillars", "Hand-pick or use Bt (Bacillus thuringiensis) spray. Check plants regularly."},
	{"pest_control", "fungal_diseases", "Improve air circulation, avoid overhead watering, use fungicides if needed."},
	{"livestock", "cattle", "Cattle need fresh water, quality pasture, and regular health checks. Rotate grazing areas."},
	{"livestock", "chickens", "Chickens need secure housing, balanced feed, and clean water. Collect eggs daily."},
	{"livestock", "pigs", "Pigs require shelter, balanced diet, and clean environment. Monitor for diseases."},
	{"crop_care", "corn", "Corn requires well-drained soil, regular watering, and nitrogen-rich fertilizer. Plant after last frost."},
	{"crop_care", "wheat", "Wheat grows best in cool, moist conditions. Requires good drainage and moderate fertilization."},
	{"crop_care", "soybeans", "Soybeans fix their own nitrogen. Need warm soil and moderate water. Avoid overwatering."},
}

type Reply struct {
	Text   string `json:"reply"`
	Source string `json:"source"`
	Topic  string `json:"topic,omitempty"`
}

type Option func(*Responder)

func WithCompleter(c Completer) Option {
	return func(r *Responder) { r.completer = c }
}

// WithPicker replaces the random choice of canned reply; pick returns an
// index in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(r *Responder) { r.pick = pick }
}

func WithKnowledgeBase(kb []Topic) Option {
	return func(r *Responder) { r.kb = kb }
}

type Responder struct {
	kb        []Topic
	completer Completer
	pick      func(n int) int
	logger    *slog.Logger
}

func NewResponder(logger *slog.Logger, opts ...Option) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Responder{
		kb:     KnowledgeBase,
		pick:   rand.IntN,
		logger: logger.With("component", "chat"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond never fails: any internal fault becomes the apology. farmContext
// is serialised into the completion prompt when present.
func (r *Responder) Respond(ctx context.Context, message string, farmContext map[string]any) (reply Reply) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("chat responder panic", "panic", p)
			reply = Reply{Text: Apology, Source: SourceError}
		}
	}()

	if t, ok := r.Lookup(message); ok {
		return Reply{Text: t.Advice, Source: SourceKnowledgeBase, Topic: t.Keyword}
	}
	if r.completer == nil {
		return r.fallback()
	}
	system := systemPrompt
	if len(farmContext) > 0 {
		data, err := json.Marshal(farmContext)
		if err != nil {
			r.logger.Error("chat context encode failed", "error", err)
			return Reply{Text: Apology, Source: SourceError}
		}
		system += "Current farm data: " + string(data) + ". "
	}
	text, err := r.completer.Complete(ctx, system, message)
	if err != nil || strings.TrimSpace(text) == "" {
		r.logger.Error("chat completion failed", "error", err)
		return r.fallback()
	}
	return Reply{Text: text, Source: SourceCompletion}
}

// Lookup finds the first topic whose keyword occurs in message as a
// substring, or one of whose keyword words occurs as a whole word. Keyword
// words are split on spaces and underscores.
func (r *Responder) Lookup(message string) (Topic, bool) {
	msg := strings.ToLower(message)
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(msg, notWordRune) {
		words[w] = struct{}{}
	}
	for _, t := range r.kb {
		key := strings.ToLower(t.Keyword)
		if key != "" && strings.Contains(msg, key) {
			return t, true
		}
		for _, part := range strings.FieldsFunc(key, func(c rune) bool { return c == ' ' || c == '_' }) {
			if _, ok := words[part]; ok {
				return t, true
			}
		}
	}
	return Topic{}, false
}

func (r *Responder) fallback() Reply {
	return Reply{Text: cannedReplies[r.pick(len(cannedReplies))], Source: SourceFallback}
}

func notWordRune(c rune) bool {
	return !unicode.IsLetter(c) && !unicode.IsDigit(c)
}

// CannedReplies returns the fallback replies, for callers that need to
// recognise one.
func CannedReplies() []string {
	return cannedReplies[:]
}
